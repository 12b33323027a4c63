package events

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	tbapi "github.com/OvyFlash/telegram-bot-api"
	cache "github.com/go-pkgz/expirable-cache/v3"

	"github.com/telemod/telebot/app/bot"
)

// default outbound timings. The delays before the notice and the immediate
// ban give the platform time to observe the preceding delete.
const (
	defaultNoticeDelay = time.Second
	defaultBanDelay    = 3 * time.Second
	defaultNoticeTTL   = 5 * time.Minute
	dispatcherQueue    = 1000

	fallbackMaxChats = 10000
	fallbackTTL      = 24 * time.Hour
)

// Dispatcher owns all outbound platform calls and executes them one by one in
// submission order. Submitting never blocks the workers, an overflowing queue
// drops the call with a warning.
type Dispatcher struct {
	tbAPI     TbAPI
	audit     AuditLogger
	botUserID int64

	noticeDelay time.Duration
	banDelay    time.Duration
	noticeTTL   time.Duration

	calls chan func(ctx context.Context)

	mu           sync.Mutex
	fallbackSent cache.Cache[int64, struct{}] // chats the spam-fallback message was sent to
}

// BanRequest describes a ban escalation, either immediate from a trigger or
// from the spam ledger threshold.
type BanRequest struct {
	ChatID    int64
	User      bot.User
	Immediate bool        // trigger's immediately_ban, adds the ban delay
	OnResult  func(error) // invoked after the call completes, may be nil
}

// NewDispatcher makes a dispatcher for the given API. Audit logger may be nil.
func NewDispatcher(tbAPI TbAPI, audit AuditLogger, botUserID int64) *Dispatcher {
	return &Dispatcher{
		tbAPI:        tbAPI,
		audit:        audit,
		botUserID:    botUserID,
		noticeDelay:  defaultNoticeDelay,
		banDelay:     defaultBanDelay,
		noticeTTL:    defaultNoticeTTL,
		calls:        make(chan func(ctx context.Context), dispatcherQueue),
		fallbackSent: cache.NewCache[int64, struct{}]().WithMaxKeys(fallbackMaxChats).WithTTL(fallbackTTL),
	}
}

// Run executes queued calls until the context is canceled. Blocked call.
func (d *Dispatcher) Run(ctx context.Context) error {
	log.Printf("[INFO] outbound dispatcher started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case call := <-d.calls:
			call(ctx)
		}
	}
}

func (d *Dispatcher) submit(call func(ctx context.Context)) {
	select {
	case d.calls <- call:
	default:
		log.Printf("[WARN] outbound queue full, call dropped")
	}
}

// DeleteMessage removes a message from a chat.
func (d *Dispatcher) DeleteMessage(chatID int64, msgID int) {
	d.submit(func(ctx context.Context) {
		if err := d.deleteMessage(chatID, msgID); err != nil {
			log.Printf("[WARN] failed to delete message %d in chat %d: %v", msgID, chatID, err)
			return
		}
		log.Printf("[INFO] message %d deleted in chat %d", msgID, chatID)
		if d.audit != nil {
			d.audit.Save(AuditEntry{Action: "delete", ChatID: chatID, MsgID: msgID, Time: time.Now()})
		}
	})
}

func (d *Dispatcher) deleteMessage(chatID int64, msgID int) error {
	resp, err := d.tbAPI.Request(tbapi.DeleteMessageConfig{BaseChatMessage: tbapi.BaseChatMessage{
		ChatConfig: tbapi.ChatConfig{ChatID: chatID}, MessageID: msgID}})
	if err != nil {
		return err
	}
	if !resp.Ok {
		return fmt.Errorf("response is not Ok: %v", string(resp.Result))
	}
	return nil
}

// SendNotice posts the explanatory message after a delete, html mode, with
// the transmit delay. The bot's own notice is scheduled for self-deletion so
// chats don't accumulate moderation chatter.
func (d *Dispatcher) SendNotice(chatID int64, text string) {
	d.submit(func(ctx context.Context) {
		select {
		case <-time.After(d.noticeDelay):
		case <-ctx.Done():
			return
		}
		sent, err := send(tbapi.NewMessage(chatID, text), d.tbAPI)
		if err != nil {
			return
		}
		if sent.From != nil && sent.From.ID == d.botUserID {
			time.AfterFunc(d.noticeTTL, func() { d.DeleteMessage(chatID, sent.MessageID) })
		}
	})
}

// SendSpamFallback sends the configured fallback text to a chat not present
// in the registry, at most once per chat.
func (d *Dispatcher) SendSpamFallback(chatID int64, text string) {
	d.mu.Lock()
	if _, ok := d.fallbackSent.Get(chatID); ok {
		d.mu.Unlock()
		return
	}
	d.fallbackSent.Set(chatID, struct{}{}, 0)
	d.mu.Unlock()

	d.submit(func(ctx context.Context) {
		if _, err := send(tbapi.NewMessage(chatID, text), d.tbAPI); err == nil {
			log.Printf("[INFO] spam fallback sent to unregistered chat %d", chatID)
		}
	})
}

// Ban kicks the user out of the chat. until_date is now, so the platform
// treats it as a permanent ban; messages are kept.
func (d *Dispatcher) Ban(req BanRequest) {
	d.submit(func(ctx context.Context) {
		if req.Immediate {
			select {
			case <-time.After(d.banDelay):
			case <-ctx.Done():
				return
			}
		}
		err := d.banChatMember(req.ChatID, req.User.ID)
		if err != nil {
			log.Printf("[WARN] failed to ban %s in chat %d: %v", req.User, req.ChatID, err)
		} else {
			log.Printf("[INFO] user %s banned in chat %d", req.User, req.ChatID)
			if d.audit != nil {
				d.audit.Save(AuditEntry{Action: "ban", ChatID: req.ChatID, UserID: req.User.ID,
					UserName: req.User.Username, Time: time.Now()})
			}
		}
		if req.OnResult != nil {
			req.OnResult(err)
		}
	})
}

func (d *Dispatcher) banChatMember(chatID, userID int64) error {
	resp, err := d.tbAPI.Request(tbapi.BanChatMemberConfig{
		ChatMemberConfig: tbapi.ChatMemberConfig{
			ChatConfig: tbapi.ChatConfig{ChatID: chatID},
			UserID:     userID,
		},
		UntilDate:      time.Now().Unix(),
		RevokeMessages: false,
	})
	if err != nil {
		return err
	}
	if !resp.Ok {
		return fmt.Errorf("response is not Ok: %v", string(resp.Result))
	}
	return nil
}
