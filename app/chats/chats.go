// Package chats keeps the set of moderated group chats. The registry holds an
// ordered snapshot of chats replaced atomically on config reload; each chat
// owns an immutable rule list plus mutable admin/owner caches refreshed from
// the platform.
package chats

import (
	"sort"
	"sync"

	"github.com/telemod/telebot/lib/trigger"
)

// BotInfo is the bot's own privilege descriptor in a chat.
type BotInfo struct {
	UserID      int64
	CanDelete   bool
	CanRestrict bool
	IsAdmin     bool
}

// Chat is a single moderated group. Rule list and per-chat settings are fixed
// for the chat's lifetime, a reload produces a new Chat. Admin and owner
// caches and the display name are refreshed in place under the chat lock;
// the owner set is always a subset of the admin set.
type Chat struct {
	ID            int64
	SkipAdmins    bool
	PremiumBan    bool
	WhiteUsers    []int64
	UserSpamLimit int
	UserRestricts []int
	Triggers      []*trigger.Trigger

	mu       sync.RWMutex
	name     string
	adminIDs map[int64]struct{}
	ownerIDs map[int64]struct{}
	botInfo  *BotInfo
}

// New creates a chat with the given id and display name.
func New(id int64, name string) *Chat {
	return &Chat{
		ID:       id,
		name:     name,
		adminIDs: map[int64]struct{}{},
		ownerIDs: map[int64]struct{}{},
	}
}

// Name returns the current display label.
func (c *Chat) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name
}

// SetName updates the display label, refreshed from upstream getChat.
func (c *Chat) SetName(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.name = name
}

// SetAdminIDs installs the administrator cache.
func (c *Chat) SetAdminIDs(ids []int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.adminIDs = make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		c.adminIDs[id] = struct{}{}
	}
	// keep the invariant: every owner is an admin
	for id := range c.ownerIDs {
		c.adminIDs[id] = struct{}{}
	}
}

// SetOwnerIDs installs the owner cache. Owners are added to the admin cache
// as well to keep admin ⊇ owner.
func (c *Chat) SetOwnerIDs(ids []int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ownerIDs = make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		c.ownerIDs[id] = struct{}{}
		c.adminIDs[id] = struct{}{}
	}
}

// SetBotInfo installs the bot's own privilege descriptor.
func (c *Chat) SetBotInfo(info *BotInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.botInfo = info
}

// BotInfo returns the bot's privilege descriptor, nil until discovered.
func (c *Chat) BotInfo() *BotInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.botInfo
}

// IsAdmin reports if the user is a cached administrator.
func (c *Chat) IsAdmin(userID int64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.adminIDs[userID]
	return ok
}

// IsOwner reports if the user is a cached owner.
func (c *Chat) IsOwner(userID int64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.ownerIDs[userID]
	return ok
}

// IsWhitelisted reports if the user is exempt from all rules in this chat.
func (c *Chat) IsWhitelisted(userID int64) bool {
	for _, id := range c.WhiteUsers {
		if id == userID {
			return true
		}
	}
	return false
}

// hasCaches reports if the admin or owner cache was already filled.
func (c *Chat) hasCaches() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.adminIDs) > 0 || len(c.ownerIDs) > 0
}

// inheritFrom copies admin/owner caches, bot info and label from the previous
// generation of the same chat.
func (c *Chat) inheritFrom(old *Chat) {
	old.mu.RLock()
	adminIDs := make(map[int64]struct{}, len(old.adminIDs))
	for id := range old.adminIDs {
		adminIDs[id] = struct{}{}
	}
	ownerIDs := make(map[int64]struct{}, len(old.ownerIDs))
	for id := range old.ownerIDs {
		ownerIDs[id] = struct{}{}
	}
	botInfo := old.botInfo
	name := old.name
	old.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.adminIDs = adminIDs
	c.ownerIDs = ownerIDs
	if c.botInfo == nil {
		c.botInfo = botInfo
	}
	if c.name == "" {
		c.name = name
	}
}

// Registry is a thread-safe ordered set of chats. Readers get a snapshot copy
// of the slice and never hold the registry lock while iterating.
type Registry struct {
	mu    sync.RWMutex
	chats []*Chat // sorted by id
}

// NewRegistry makes an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Snapshot returns the current chat list ordered by id. The slice is a copy,
// the chats are shared and safe for concurrent use.
func (r *Registry) Snapshot() []*Chat {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]*Chat, len(r.chats))
	copy(res, r.chats)
	return res
}

// Get looks a chat up by id.
func (r *Registry) Get(id int64) (*Chat, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := sort.Search(len(r.chats), func(i int) bool { return r.chats[i].ID >= id })
	if i < len(r.chats) && r.chats[i].ID == id {
		return r.chats[i], true
	}
	return nil, false
}

// Replace atomically swaps the chat list. Chats present in both generations
// inherit the previous admin/owner caches and bot info unless the caller
// already filled them on the new entry, so a reload never leaves a chat
// briefly without admins.
func (r *Registry) Replace(chats []*Chat) {
	sorted := make([]*Chat, len(chats))
	copy(sorted, chats)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	r.mu.Lock()
	defer r.mu.Unlock()
	old := make(map[int64]*Chat, len(r.chats))
	for _, c := range r.chats {
		old[c.ID] = c
	}
	for _, c := range sorted {
		if prev, ok := old[c.ID]; ok && !c.hasCaches() {
			c.inheritFrom(prev)
		}
	}
	r.chats = sorted
}

// Remove drops a chat by id, used when upstream reports it gone or not a
// group anymore.
func (r *Registry) Remove(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := sort.Search(len(r.chats), func(i int) bool { return r.chats[i].ID >= id })
	if i < len(r.chats) && r.chats[i].ID == id {
		r.chats = append(r.chats[:i], r.chats[i+1:]...)
	}
}

// Len returns the number of registered chats.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.chats)
}
