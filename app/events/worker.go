package events

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tbapi "github.com/OvyFlash/telegram-bot-api"
	cache "github.com/go-pkgz/expirable-cache/v3"

	"github.com/telemod/telebot/app/bot"
	"github.com/telemod/telebot/app/chats"
	"github.com/telemod/telebot/app/storage"
	"github.com/telemod/telebot/lib/trigger"
)

// media group entries not touched for an hour are evicted
const mediaGroupTTL = time.Hour

type mediaGroup struct {
	chatID int64
	msgIDs []int
	bad    bool
}

// mediaGroups accumulates messages sharing a media_group_id so a media album
// is moderated as a single unit. Once a group is marked bad every later
// message of it is deleted without re-evaluation.
type mediaGroups struct {
	mu    sync.Mutex
	cache cache.Cache[string, *mediaGroup]
}

func newMediaGroups(ttl time.Duration) *mediaGroups {
	return &mediaGroups{cache: cache.NewCache[string, *mediaGroup]().WithTTL(ttl)}
}

// record adds the message to its group, initializing on first insert.
// Returns true if the group is already marked bad and the message should be
// deleted without evaluation.
func (m *mediaGroups) record(msg *bot.Message) (alreadyBad bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.cache.Get(msg.MediaGroupID)
	if !ok {
		g = &mediaGroup{chatID: msg.ChatID}
		m.cache.Set(msg.MediaGroupID, g, 0)
	}
	if g.bad {
		return true
	}
	if g.chatID != msg.ChatID {
		log.Printf("[ERROR] media group %s seen in chat %d but recorded for chat %d",
			msg.MediaGroupID, msg.ChatID, g.chatID)
	}
	g.msgIDs = append(g.msgIDs, msg.ID)
	m.cache.Set(msg.MediaGroupID, g, 0) // refresh ttl on touch
	return false
}

// markBad flags the group and returns all message ids recorded so far.
func (m *mediaGroups) markBad(groupID string) []int {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.cache.Get(groupID)
	if !ok {
		return nil
	}
	g.bad = true
	res := g.msgIDs
	g.msgIDs = nil
	return res
}

// sweep evicts entries past their ttl.
func (m *mediaGroups) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.DeleteExpired()
}

// Worker decodes raw webhook payloads and runs the filter pipeline. Several
// identical workers share the update queue, the media group accumulator and
// the ledger.
type Worker struct {
	registry    *chats.Registry
	dispatcher  *Dispatcher
	ledger      *Ledger
	botUserID   int64
	settings    *atomic.Pointer[storage.Settings]
	mediaGroups *mediaGroups
}

// NewWorker makes a worker; the mediaGroups accumulator and settings pointer
// are shared between all workers of a pool.
func NewWorker(registry *chats.Registry, dispatcher *Dispatcher, ledger *Ledger,
	botUserID int64, settings *atomic.Pointer[storage.Settings], groups *mediaGroups) *Worker {
	return &Worker{
		registry:    registry,
		dispatcher:  dispatcher,
		ledger:      ledger,
		botUserID:   botUserID,
		settings:    settings,
		mediaGroups: groups,
	}
}

// Run consumes updates until the context is canceled. Blocked call.
func (w *Worker) Run(ctx context.Context, updates <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-updates:
			if !ok {
				return nil
			}
			w.processUpdate(ctx, raw)
			w.mediaGroups.sweep()
		}
	}
}

func (w *Worker) processUpdate(ctx context.Context, raw []byte) {
	var upd tbapi.Update
	if err := json.Unmarshal(raw, &upd); err != nil {
		log.Printf("[DEBUG] failed to decode update, dropped: %v", err)
		return
	}

	msg := upd.Message
	if msg == nil {
		msg = upd.EditedMessage
	}
	if msg == nil {
		return
	}
	if msg.Chat.ID == 0 {
		log.Printf("[DEBUG] ignoring message %d without chat", msg.MessageID)
		return
	}
	if msg.From == nil {
		log.Printf("[DEBUG] ignoring message %d without sender in chat %d", msg.MessageID, msg.Chat.ID)
		return
	}

	// the bot's own messages are removed, notices don't pile up
	if msg.From.ID == w.botUserID {
		w.dispatcher.DeleteMessage(msg.Chat.ID, msg.MessageID)
		return
	}

	chat, found := w.registry.Get(msg.Chat.ID)
	if !found {
		if s := w.settings.Load(); s != nil && s.SpamMessage.Active && s.SpamMessage.Text != "" {
			w.dispatcher.SendSpamFallback(msg.Chat.ID, s.SpamMessage.Text)
		}
		return
	}

	m := transform(msg)

	if m.MediaGroupID != "" {
		if w.mediaGroups.record(m) {
			w.dispatcher.DeleteMessage(chat.ID, m.ID)
			return
		}
	}

	userID := m.From.ID
	if chat.SkipAdmins && chat.IsAdmin(userID) {
		return
	}
	if chat.IsWhitelisted(userID) {
		return
	}

	req := trigger.Request{
		Content:  m.CleanText(),
		UserName: m.From.HandleName(),
		URLs:     m.URLs(),
		ChatID:   chat.ID,
		UserID:   userID,
	}

	for _, tr := range chat.Triggers {
		if !tr.Active {
			continue
		}
		if tr.SkipAdmins && chat.IsAdmin(userID) {
			continue
		}
		if tr.Whitelisted(userID) {
			continue
		}
		resp := tr.Check(req)
		if !resp.Active {
			continue
		}
		log.Printf("[INFO] trigger %s activated in chat %d by %s: %s", tr, chat.ID, m.From, resp.Reason)
		w.punish(ctx, chat, m, tr, resp.Reason)
		break
	}
}

// punish deletes the offending message (or the whole media album), posts the
// explanatory notice and escalates: immediate ban or a spam report.
func (w *Worker) punish(ctx context.Context, chat *chats.Chat, m *bot.Message, tr *trigger.Trigger, reason string) {
	if m.MediaGroupID != "" {
		for _, id := range w.mediaGroups.markBad(m.MediaGroupID) {
			w.dispatcher.DeleteMessage(chat.ID, id)
		}
	} else {
		w.dispatcher.DeleteMessage(chat.ID, m.ID)
	}

	origText := strings.TrimSpace(strings.TrimSpace(m.Caption) + "\n" + strings.TrimSpace(m.Text))
	w.dispatcher.SendNotice(chat.ID, bot.FormatNotice(origText, reason, tr.Name, tr.Description))

	if tr.ImmediatelyBan {
		w.dispatcher.Ban(BanRequest{ChatID: chat.ID, User: m.From, Immediate: true})
		return
	}
	w.ledger.ReportSpam(ctx, chat.ID, m.From)
}
