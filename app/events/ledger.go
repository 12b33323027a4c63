package events

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/telemod/telebot/app/bot"
	"github.com/telemod/telebot/app/chats"
	"github.com/telemod/telebot/app/storage"
)

// strikes older than this are forgotten
const strikeWindow = 24 * time.Hour

type ledgerKey struct {
	chatID int64
	userID int64
}

type spammerRecord struct {
	user       bot.User
	strikes    []time.Time
	banPending bool // set when the ban call was submitted, cleared on failure
}

// Ledger tracks per-user spam strikes and escalates to a ban when a chat's
// limit is reached. Strikes are written through to the storage so a restart
// does not reset escalation.
type Ledger struct {
	registry   *chats.Registry
	store      *storage.Strikes // may be nil, then the ledger is memory-only
	dispatcher *Dispatcher

	mu      sync.Mutex
	records map[ledgerKey]*spammerRecord
	now     func() time.Time
}

// NewLedger makes a ledger over the registry; store may be nil.
func NewLedger(registry *chats.Registry, store *storage.Strikes, dispatcher *Dispatcher) *Ledger {
	return &Ledger{
		registry:   registry,
		store:      store,
		dispatcher: dispatcher,
		records:    map[ledgerKey]*spammerRecord{},
		now:        time.Now,
	}
}

// Load restores persisted strikes, called once before the workers start.
func (g *Ledger) Load(ctx context.Context) error {
	if g.store == nil {
		return nil
	}
	persisted, err := g.store.Load(ctx)
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	for _, s := range persisted {
		key := ledgerKey{chatID: s.ChatID, userID: s.UserID}
		rec, ok := g.records[key]
		if !ok {
			rec = &spammerRecord{}
			g.records[key] = rec
		}
		if s.UserJSON != "" {
			if err := json.Unmarshal([]byte(s.UserJSON), &rec.user); err != nil {
				log.Printf("[WARN] failed to decode user for strike %d/%d: %v", s.ChatID, s.UserID, err)
			}
		}
		rec.strikes = append(rec.strikes, s.TS)
	}
	log.Printf("[INFO] spam ledger restored, %d records", len(g.records))
	return nil
}

// ReportSpam registers a strike for the user and runs the full escalation
// cycle over the ledger: records of gone or disabled chats are dropped,
// expired strikes purged and users over the limit submitted for a ban.
func (g *Ledger) ReportSpam(ctx context.Context, chatID int64, user bot.User) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	key := ledgerKey{chatID: chatID, userID: user.ID}
	rec, ok := g.records[key]
	if !ok {
		rec = &spammerRecord{}
		g.records[key] = rec
	}
	rec.user = user
	rec.strikes = append(rec.strikes, now)
	g.persistStrike(ctx, key, user, now)

	// full cycle over the ledger, ordered by (chat, user)
	keys := make([]ledgerKey, 0, len(g.records))
	for k := range g.records {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].chatID != keys[j].chatID {
			return keys[i].chatID < keys[j].chatID
		}
		return keys[i].userID < keys[j].userID
	})

	for _, k := range keys {
		rec := g.records[k]
		chat, found := g.registry.Get(k.chatID)
		if !found {
			log.Printf("[DEBUG] chat %d gone, spam record for user %d dropped", k.chatID, k.userID)
			g.drop(ctx, k)
			continue
		}
		if chat.UserSpamLimit <= 0 {
			g.drop(ctx, k)
			continue
		}

		// purge expired strikes
		kept := rec.strikes[:0]
		for _, ts := range rec.strikes {
			if now.Sub(ts) <= strikeWindow {
				kept = append(kept, ts)
			}
		}
		rec.strikes = kept
		if len(rec.strikes) == 0 {
			g.drop(ctx, k)
			continue
		}

		if len(rec.strikes) < chat.UserSpamLimit || rec.banPending {
			continue
		}

		if chat.IsOwner(k.userID) {
			log.Printf("[INFO] Owner of chat cannot be banned, %s in chat %d", rec.user, k.chatID)
			g.drop(ctx, k)
			continue
		}

		rec.banPending = true
		k := k
		g.dispatcher.Ban(BanRequest{ChatID: k.chatID, User: rec.user,
			OnResult: func(err error) { g.banResult(ctx, k, err) }})
	}
}

// banResult finalizes the escalation: a successful ban removes the record, a
// failed one keeps it for the next cycle.
func (g *Ledger) banResult(ctx context.Context, key ledgerKey, banErr error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok := g.records[key]
	if !ok {
		return
	}
	if banErr != nil {
		log.Printf("[WARN] ban failed for %s in chat %d, record retained: %v", rec.user, key.chatID, banErr)
		rec.banPending = false
		return
	}
	log.Printf("[INFO] spammer %s banned in chat %d, record removed", rec.user, key.chatID)
	g.drop(ctx, key)
}

// Len returns the number of ledger records.
func (g *Ledger) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.records)
}

// drop removes the record and its persisted strikes, caller holds the lock.
func (g *Ledger) drop(ctx context.Context, key ledgerKey) {
	delete(g.records, key)
	if g.store != nil {
		if err := g.store.DeleteUser(ctx, key.chatID, key.userID); err != nil {
			log.Printf("[WARN] failed to delete persisted strikes for %d/%d: %v", key.chatID, key.userID, err)
		}
	}
}

// persistStrike writes the strike through to the store, caller holds the lock.
func (g *Ledger) persistStrike(ctx context.Context, key ledgerKey, user bot.User, ts time.Time) {
	if g.store == nil {
		return
	}
	userJSON, err := json.Marshal(user)
	if err != nil {
		log.Printf("[WARN] failed to encode user %s: %v", user, err)
		userJSON = []byte("")
	}
	strike := storage.Strike{ChatID: key.chatID, UserID: key.userID, UserJSON: string(userJSON), TS: ts}
	if err := g.store.Add(ctx, strike); err != nil {
		log.Printf("[WARN] failed to persist strike for %s in chat %d: %v", user, key.chatID, err)
	}
}

// Cleanup drops expired strikes from the persistent store, called on the
// hourly tick.
func (g *Ledger) Cleanup(ctx context.Context) {
	if g.store == nil {
		return
	}
	if err := g.store.Cleanup(ctx, g.now().Add(-strikeWindow)); err != nil {
		log.Printf("[WARN] failed to cleanup persisted strikes: %v", err)
	}
}
