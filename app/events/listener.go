package events

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	tbapi "github.com/OvyFlash/telegram-bot-api"
	"github.com/go-pkgz/repeater/v2"

	"github.com/telemod/telebot/app/chats"
	"github.com/telemod/telebot/app/config"
	"github.com/telemod/telebot/app/storage"
	"github.com/telemod/telebot/app/webhook"
)

// Listener wires the webhook ingress, the workers, the dispatcher and the
// config reload path together and runs them until the context is canceled.
// Not thread safe, make one and call Do once.
type Listener struct {
	TbAPI      TbAPI
	Registry   *chats.Registry
	Loader     *config.Loader
	ConfigFile string
	Webhook    *webhook.Server
	Workers    int
	State      *storage.State   // may be nil
	Strikes    *storage.Strikes // may be nil
	Audit      AuditLogger      // may be nil

	dispatcher *Dispatcher
	ledger     *Ledger
	refresher  *adminRefresher
	settings   atomic.Pointer[storage.Settings]
	botUserID  int64
}

// Do runs the bot, blocked call. Returns an error on a failed init, context
// cancellation error on shutdown.
func (l *Listener) Do(ctx context.Context) error {
	// bot identity is mandatory, nothing works without it
	me, err := l.me(ctx)
	if err != nil {
		return fmt.Errorf("failed to get bot identity: %w", err)
	}
	l.botUserID = me.ID
	log.Printf("[INFO] authorized as %q (%d)", me.UserName, me.ID)

	l.dispatcher = NewDispatcher(l.TbAPI, l.Audit, l.botUserID)
	l.ledger = NewLedger(l.Registry, l.Strikes, l.dispatcher)
	if err := l.ledger.Load(ctx); err != nil {
		return fmt.Errorf("failed to restore spam ledger: %w", err)
	}
	l.refresher = &adminRefresher{tbAPI: l.TbAPI, registry: l.Registry, botUserID: l.botUserID}

	l.reload(ctx)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// a failed mandatory component kills the run and its error is what Do
	// returns, a bare cancellation would read as a clean shutdown
	fatal := make(chan error, 1)
	fail := func(err error) {
		log.Printf("[ERROR] %v", err)
		select {
		case fatal <- err:
		default:
		}
		cancel()
	}

	go func() {
		if err := l.dispatcher.Run(ctx); err != nil && ctx.Err() == nil {
			fail(fmt.Errorf("dispatcher terminated: %w", err))
		}
	}()

	go func() {
		if err := l.Webhook.Run(ctx); err != nil {
			fail(fmt.Errorf("webhook server terminated: %w", err))
		}
	}()

	reloadCh := make(chan struct{}, 1)
	go func() {
		err := config.Watch(ctx, l.ConfigFile, func() {
			select {
			case reloadCh <- struct{}{}:
			default:
			}
		})
		if err != nil && ctx.Err() == nil {
			log.Printf("[WARN] config watcher terminated: %v", err)
		}
	}()

	workers := l.Workers
	if workers <= 0 {
		workers = 1
	}
	groups := newMediaGroups(mediaGroupTTL)
	for i := 0; i < workers; i++ {
		worker := NewWorker(l.Registry, l.dispatcher, l.ledger, l.botUserID, &l.settings, groups)
		go func(n int) {
			if err := worker.Run(ctx, l.Webhook.Updates()); err != nil && ctx.Err() == nil {
				log.Printf("[ERROR] worker %d terminated: %v", n, err)
			}
		}(i)
	}
	log.Printf("[INFO] %d workers started", workers)

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			select {
			case err := <-fatal:
				return err
			default:
			}
			return ctx.Err()
		case err := <-fatal:
			return err
		case <-reloadCh:
			log.Printf("[INFO] config file changed, reloading")
			l.reload(ctx)
		case <-ticker.C:
			l.reload(ctx)
			l.ledger.Cleanup(ctx)
		}
	}
}

// reload re-reads the rules document and the operational state, swaps the
// registry and refreshes admin caches. A failed document read keeps the
// previous registry intact.
func (l *Listener) reload(ctx context.Context) {
	doc, err := l.Loader.Load()
	if err != nil {
		log.Printf("[WARN] failed to load config, keeping previous: %v", err)
	} else {
		l.Registry.Replace(doc)
		log.Printf("[INFO] config loaded, %d chats", l.Registry.Len())
	}

	if l.State != nil {
		settings, err := l.State.Load(ctx)
		if err != nil {
			log.Printf("[WARN] failed to load state settings: %v", err)
		} else {
			l.settings.Store(settings)
		}
	}

	l.refresher.Refresh(ctx)
}

func (l *Listener) me(ctx context.Context) (me tbapi.User, err error) {
	err = repeater.NewFixed(5, time.Second).Do(ctx, func() error {
		var e error
		me, e = l.TbAPI.GetMe()
		return e
	})
	return me, err
}
