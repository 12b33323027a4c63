package trigger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		kind Kind
		err  bool
	}{
		{"link", LinkDisable, false},
		{"link_disable", LinkDisable, false},
		{"link_enable", LinkEnable, false},
		{"word", Word, false},
		{"regexp", Regexp, false},
		{"emoji_limit", EmojiLimit, false},
		{"lua", Lua, false},
		{"bogus", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		kind, err := ParseKind(tt.in)
		if tt.err {
			require.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.kind, kind)
	}
}

func TestTriggerInverse(t *testing.T) {
	base := &Trigger{Name: "w", Kind: Word, Active: true,
		Words: &WordParams{CaseInsensitive: true, WordList: []string{"spam"}}}
	inv := &Trigger{Name: "w", Kind: Word, Active: true, Inverse: true,
		Words: &WordParams{CaseInsensitive: true, WordList: []string{"spam"}}}

	hit := Request{Content: "spam here"}
	miss := Request{Content: "clean"}

	assert.True(t, base.Check(hit).Active)
	assert.False(t, base.Check(miss).Active)
	assert.False(t, inv.Check(hit).Active)
	assert.True(t, inv.Check(miss).Active)
	assert.Empty(t, inv.Check(hit).Reason)
}

func TestTriggerWhitelisted(t *testing.T) {
	tr := &Trigger{Name: "w", Kind: Word, WhiteUsers: []int64{1, 42}}
	assert.True(t, tr.Whitelisted(42))
	assert.False(t, tr.Whitelisted(7))
}

func TestTriggerMissingPayload(t *testing.T) {
	// a trigger without its payload never activates
	for _, kind := range []Kind{LinkDisable, LinkEnable, Word, Regexp, EmojiLimit, Lua} {
		tr := &Trigger{Name: "empty", Kind: kind, Active: true}
		assert.False(t, tr.Check(Request{Content: "anything", URLs: []string{"https://x.test"}}).Active, string(kind))
	}
}

func TestEmojiLimit(t *testing.T) {
	tr := &Trigger{Name: "emoji", Kind: EmojiLimit, Active: true, Emoji: &EmojiParams{MaxEmoji: 2}}

	assert.False(t, tr.Check(Request{Content: "no emoji at all"}).Active)
	assert.False(t, tr.Check(Request{Content: "ok 👍👍"}).Active)

	resp := tr.Check(Request{Content: "🔥🔥🔥 buy now"})
	require.True(t, resp.Active)
	assert.Equal(t, "эмодзи: 3", resp.Reason)
}
