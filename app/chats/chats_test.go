package chats

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatAdminOwnerCaches(t *testing.T) {
	c := New(-100, "test group")

	c.SetAdminIDs([]int64{1, 2})
	assert.True(t, c.IsAdmin(1))
	assert.True(t, c.IsAdmin(2))
	assert.False(t, c.IsAdmin(3))

	c.SetOwnerIDs([]int64{3})
	assert.True(t, c.IsOwner(3))
	assert.True(t, c.IsAdmin(3), "owner is always an admin")

	// replacing admins keeps owners in the admin set
	c.SetAdminIDs([]int64{5})
	assert.True(t, c.IsAdmin(5))
	assert.True(t, c.IsAdmin(3))
	assert.False(t, c.IsAdmin(1))
}

func TestChatWhitelist(t *testing.T) {
	c := New(-1, "")
	c.WhiteUsers = []int64{10, 20}
	assert.True(t, c.IsWhitelisted(10))
	assert.False(t, c.IsWhitelisted(30))
}

func TestRegistryOrderAndLookup(t *testing.T) {
	r := NewRegistry()
	r.Replace([]*Chat{New(-300, "c"), New(-100, "a"), New(-200, "b")})

	snap := r.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, int64(-300), snap[0].ID)
	assert.Equal(t, int64(-200), snap[1].ID)
	assert.Equal(t, int64(-100), snap[2].ID)

	c, ok := r.Get(-200)
	require.True(t, ok)
	assert.Equal(t, "b", c.Name())

	_, ok = r.Get(-999)
	assert.False(t, ok)
}

func TestRegistryReplaceInheritsCaches(t *testing.T) {
	r := NewRegistry()
	oldChat := New(-100, "old name")
	oldChat.SetAdminIDs([]int64{1, 2})
	oldChat.SetOwnerIDs([]int64{1})
	oldChat.SetBotInfo(&BotInfo{UserID: 99, IsAdmin: true})
	r.Replace([]*Chat{oldChat})

	// new generation without caches inherits everything
	fresh := New(-100, "")
	r.Replace([]*Chat{fresh})
	got, ok := r.Get(-100)
	require.True(t, ok)
	assert.True(t, got.IsAdmin(2))
	assert.True(t, got.IsOwner(1))
	require.NotNil(t, got.BotInfo())
	assert.Equal(t, int64(99), got.BotInfo().UserID)
	assert.Equal(t, "old name", got.Name())

	// caller-filled caches win over inheritance
	preset := New(-100, "new name")
	preset.SetAdminIDs([]int64{7})
	r.Replace([]*Chat{preset})
	got, ok = r.Get(-100)
	require.True(t, ok)
	assert.True(t, got.IsAdmin(7))
	assert.False(t, got.IsAdmin(2))
	assert.Equal(t, "new name", got.Name())
}

func TestRegistryReplaceDropsGone(t *testing.T) {
	r := NewRegistry()
	r.Replace([]*Chat{New(-100, ""), New(-200, "")})
	r.Replace([]*Chat{New(-100, "")})
	assert.Equal(t, 1, r.Len())
	_, ok := r.Get(-200)
	assert.False(t, ok)
}

func TestRegistryRemove(t *testing.T) {
	r := NewRegistry()
	r.Replace([]*Chat{New(-100, ""), New(-200, ""), New(-300, "")})
	r.Remove(-200)
	assert.Equal(t, 2, r.Len())
	_, ok := r.Get(-200)
	assert.False(t, ok)
	r.Remove(-999) // no-op
	assert.Equal(t, 2, r.Len())
}

func TestRegistrySnapshotSafeIteration(t *testing.T) {
	r := NewRegistry()
	r.Replace([]*Chat{New(-100, ""), New(-200, "")})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			for _, c := range r.Snapshot() {
				_ = c.IsAdmin(1)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			r.Replace([]*Chat{New(-100, ""), New(-200, ""), New(-300, "")})
		}
	}()
	wg.Wait()
	assert.Equal(t, 3, r.Len())
}
