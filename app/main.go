package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	tbapi "github.com/OvyFlash/telegram-bot-api"
	"github.com/fatih/color"
	"github.com/go-pkgz/fileutils"
	"github.com/go-pkgz/lgr"
	flags "github.com/jessevdk/go-flags"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/telemod/telebot/app/chats"
	"github.com/telemod/telebot/app/config"
	"github.com/telemod/telebot/app/events"
	"github.com/telemod/telebot/app/storage"
	"github.com/telemod/telebot/app/storage/engine"
	"github.com/telemod/telebot/app/webhook"
)

type options struct {
	Telegram struct {
		Token   string        `long:"token" env:"TOKEN" description:"telegram bot token" required:"true"`
		Timeout time.Duration `long:"timeout" env:"TIMEOUT" default:"30s" description:"http client timeout for telegram"`
	} `group:"telegram" namespace:"telegram" env-namespace:"TELEGRAM"`

	Webhook struct {
		Listen    string `long:"listen" env:"LISTEN" default:":8443" description:"webhook listen address"`
		Cert      string `long:"cert" env:"CERT" required:"true" description:"x509 certificate file"`
		Key       string `long:"key" env:"KEY" required:"true" description:"private key file"`
		Secret    string `long:"secret" env:"SECRET" description:"webhook path secret, derived from the token if empty"`
		QueueSize int    `long:"queue-size" env:"QUEUE_SIZE" default:"100" description:"update queue size"`
	} `group:"webhook" namespace:"webhook" env-namespace:"WEBHOOK"`

	Config  string `long:"config" env:"CONFIG" default:"telebot.yml" description:"rules document, yaml"`
	Workers int    `long:"workers" env:"WORKERS" default:"1" description:"number of processing workers"`

	DB struct {
		Conn string `long:"conn" env:"CONN" default:"telebot.db" description:"sqlite file or postgres url"`
		GID  string `long:"gid" env:"GID" default:"telebot" description:"group id, per-bot key in the shared database"`
	} `group:"db" namespace:"db" env-namespace:"DB"`

	Logger struct {
		Enabled    bool   `long:"enabled" env:"ENABLED" description:"enable rotated audit log of deletes and bans"`
		FileName   string `long:"file" env:"FILE" default:"telebot-audit.log" description:"location of the audit log"`
		MaxSize    string `long:"max-size" env:"MAX_SIZE" default:"100M" description:"maximum size before it gets rotated"`
		MaxBackups int    `long:"max-backups" env:"MAX_BACKUPS" default:"10" description:"maximum number of old log files to retain"`
	} `group:"logger" namespace:"logger" env-namespace:"LOGGER"`

	Dbg   bool `long:"dbg" env:"DEBUG" description:"debug mode"`
	TGDbg bool `long:"tg-dbg" env:"TG_DEBUG" description:"telegram debug mode"`
}

var revision = "local"

func main() {
	fmt.Printf("telebot %s\n", revision)
	var opts options
	p := flags.NewParser(&opts, flags.PrintErrors|flags.PassDoubleDash|flags.HelpFlag)
	if _, err := p.Parse(); err != nil {
		if err.(*flags.Error).Type != flags.ErrHelp {
			log.Printf("[ERROR] cli error: %v", err)
		}
		os.Exit(2)
	}

	setupLog(opts.Dbg, opts.Telegram.Token)
	log.Printf("[DEBUG] options: %+v", opts)

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		// catch signal and invoke graceful termination
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		log.Printf("[WARN] interrupt signal")
		cancel()
	}()

	if err := execute(ctx, opts); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("[ERROR] %v", err)
		os.Exit(1)
	}
}

func execute(ctx context.Context, opts options) error {
	if !fileutils.IsFile(opts.Config) {
		return fmt.Errorf("config file %s not found", opts.Config)
	}

	tbAPI, err := tbapi.NewBotAPIWithClient(opts.Telegram.Token, tbapi.APIEndpoint,
		&http.Client{Timeout: opts.Telegram.Timeout})
	if err != nil {
		return fmt.Errorf("can't make telegram bot, %w", err)
	}
	tbAPI.Debug = opts.TGDbg

	db, err := engine.New(ctx, opts.DB.Conn, opts.DB.GID)
	if err != nil {
		return fmt.Errorf("can't make db engine, %w", err)
	}
	defer db.Close()

	state, err := storage.NewState(ctx, db)
	if err != nil {
		return fmt.Errorf("can't make state store, %w", err)
	}
	strikes, err := storage.NewStrikes(ctx, db)
	if err != nil {
		return fmt.Errorf("can't make strikes store, %w", err)
	}

	auditWr, err := makeAuditLogWriter(opts)
	if err != nil {
		return fmt.Errorf("can't make audit log writer, %w", err)
	}
	defer auditWr.Close()

	secret := opts.Webhook.Secret
	if secret == "" {
		secret = webhookSecret(opts.Telegram.Token)
	}

	listener := events.Listener{
		TbAPI:      tbAPI,
		Registry:   chats.NewRegistry(),
		Loader:     config.NewLoader(opts.Config),
		ConfigFile: opts.Config,
		Webhook:    webhook.NewServer(opts.Webhook.Listen, opts.Webhook.Cert, opts.Webhook.Key, secret, revision, opts.Webhook.QueueSize),
		Workers:    opts.Workers,
		State:      state,
		Strikes:    strikes,
		Audit:      makeAuditLogger(auditWr),
	}
	log.Printf("[DEBUG] listener config: {config: %s, listen: %s, workers: %d, db: %s}",
		opts.Config, opts.Webhook.Listen, opts.Workers, opts.DB.Conn)

	if err := listener.Do(ctx); err != nil {
		return fmt.Errorf("listener failed, %w", err)
	}
	return nil
}

// webhookSecret derives the webhook path secret from the bot token, the part
// after the colon so the numeric bot id is not exposed in access logs.
func webhookSecret(token string) string {
	if i := strings.LastIndex(token, ":"); i >= 0 && i+1 < len(token) {
		return token[i+1:]
	}
	return token
}

// makeAuditLogger writes every moderation action as a json line
func makeAuditLogger(wr io.Writer) events.AuditLogger {
	return events.AuditLoggerFunc(func(entry events.AuditEntry) {
		line, err := json.Marshal(&entry)
		if err != nil {
			log.Printf("[WARN] can't marshal audit entry, %v", err)
			return
		}
		if _, err := wr.Write(append(line, '\n')); err != nil {
			log.Printf("[WARN] can't write to audit log, %v", err)
		}
	})
}

// makeAuditLogWriter parses options and makes lumberjack writer with rotation
func makeAuditLogWriter(opts options) (io.WriteCloser, error) {
	if !opts.Logger.Enabled {
		return nopWriteCloser{io.Discard}, nil
	}

	sizeParse := func(inp string) (uint64, error) {
		if inp == "" {
			return 0, errors.New("empty value")
		}
		for i, sfx := range []string{"k", "m", "g", "t"} {
			if strings.HasSuffix(inp, strings.ToUpper(sfx)) || strings.HasSuffix(inp, strings.ToLower(sfx)) {
				val, err := strconv.Atoi(inp[:len(inp)-1])
				if err != nil {
					return 0, fmt.Errorf("can't parse %s: %w", inp, err)
				}
				return uint64(float64(val) * math.Pow(float64(1024), float64(i+1))), nil
			}
		}
		return strconv.ParseUint(inp, 10, 64)
	}

	maxSize, perr := sizeParse(opts.Logger.MaxSize)
	if perr != nil {
		return nil, fmt.Errorf("can't parse logger MaxSize: %w", perr)
	}
	maxSize /= 1048576

	log.Printf("[INFO] audit log enabled for %s, max size %dM", opts.Logger.FileName, maxSize)
	return &lumberjack.Logger{
		Filename:   opts.Logger.FileName,
		MaxSize:    int(maxSize), // in MB
		MaxBackups: opts.Logger.MaxBackups,
		Compress:   true,
		LocalTime:  true,
	}, nil
}

type nopWriteCloser struct{ io.Writer }

func (n nopWriteCloser) Close() error { return nil }

func setupLog(dbg bool, secrets ...string) {
	logOpts := []lgr.Option{lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.CallerFile, lgr.CallerFunc, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	}

	colorizer := lgr.Mapper{
		ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
		WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
		InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
		DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
		CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
		TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
	}
	logOpts = append(logOpts, lgr.Map(colorizer))

	if len(secrets) > 0 {
		logOpts = append(logOpts, lgr.Secret(secrets...))
	}
	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
