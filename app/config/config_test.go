package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telemod/telebot/lib/trigger"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "telebot.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoaderFull(t *testing.T) {
	path := writeConfig(t, `
triggers:
  - name: links
    type: link_disable
    description: no external links
    white_list:
      - host: example.com
        paths: [/docs]
  - name: badlinks
    type: link_enable
    white_list:
      - host: example.com
    black_list:
      - host: spam.test
  - name: words
    type: word
    word_list: [spam, casino]
  - name: re
    type: regexp
    analyze: username
    case_insensitive: false
    regexp_list: ["(?i)casino"]
    immediately_ban: true
group_chats:
  - id: -100
    name: main
    triggers: [links, words]
    user_spam_limit: 2
    white_users: [42]
  - id: -200
    triggers: [re]
    skip_admins: false
`)

	l := NewLoader(path)
	chatList, err := l.Load()
	require.NoError(t, err)
	require.Len(t, chatList, 2)
	assert.Equal(t, int64(0), l.ParseErrors())

	main := chatList[0]
	assert.Equal(t, int64(-100), main.ID)
	assert.Equal(t, "main", main.Name())
	assert.True(t, main.SkipAdmins, "skip_admins defaults to true")
	assert.Equal(t, 2, main.UserSpamLimit)
	assert.True(t, main.IsWhitelisted(42))
	require.Len(t, main.Triggers, 2)
	assert.Equal(t, trigger.LinkDisable, main.Triggers[0].Kind)
	assert.Equal(t, trigger.Word, main.Triggers[1].Kind)
	assert.True(t, main.Triggers[1].Words.CaseInsensitive, "case_insensitive defaults to true")

	second := chatList[1]
	assert.False(t, second.SkipAdmins)
	assert.Equal(t, 5, second.UserSpamLimit, "user_spam_limit defaults to 5")
	require.Len(t, second.Triggers, 1)
	re := second.Triggers[0]
	assert.True(t, re.ImmediatelyBan)
	assert.Equal(t, trigger.AnalyzeUsername, re.Re.Analyze)
	assert.False(t, re.Re.CaseInsensitive)
}

func TestLoaderBadItemsSkipped(t *testing.T) {
	path := writeConfig(t, `
triggers:
  - name: good
    type: word
    word_list: [spam]
  - name: ""
    type: word
    word_list: [x]
  - name: unknown-kind
    type: wtf
  - name: no-words
    type: word
  - name: good
    type: word
    word_list: [dup]
group_chats:
  - id: -100
    triggers: [good, missing]
  - id: 0
    triggers: [good]
  - id: -100
    triggers: [good]
`)

	l := NewLoader(path)
	chatList, err := l.Load()
	require.NoError(t, err)

	// bad triggers and bad chats skipped, load still proceeds
	require.Len(t, chatList, 1)
	assert.Equal(t, int64(-100), chatList[0].ID)
	// missing trigger name logged, chat produced with resolved ones
	require.Len(t, chatList[0].Triggers, 1)
	assert.Equal(t, "good", chatList[0].Triggers[0].Name)

	// empty name, unknown kind, missing word_list, duplicate name, zero chat id, duplicate chat id
	assert.Equal(t, int64(6), l.ParseErrors())
}

func TestLoaderTopLevelFailure(t *testing.T) {
	l := NewLoader(writeConfig(t, "triggers: ["))
	_, err := l.Load()
	require.Error(t, err)
	assert.Equal(t, int64(1), l.ParseErrors())

	l = NewLoader(filepath.Join(t.TempDir(), "nope.yml"))
	_, err = l.Load()
	require.Error(t, err)
}

func TestLoaderEmojiAndLua(t *testing.T) {
	script := filepath.Join(t.TempDir(), "caps.lua")
	require.NoError(t, os.WriteFile(script, []byte(`
function check(req)
    if req.text == string.upper(req.text) and req.text ~= "" then
        return true, "капс"
    end
    return false, ""
end
`), 0o600))

	path := writeConfig(t, `
triggers:
  - name: emoji
    type: emoji_limit
    max_emoji: 3
  - name: caps
    type: lua
    script: `+script+`
group_chats:
  - id: -100
    triggers: [emoji, caps]
`)

	l := NewLoader(path)
	chatList, err := l.Load()
	require.NoError(t, err)
	require.Len(t, chatList, 1)
	require.Len(t, chatList[0].Triggers, 2)

	emoji := chatList[0].Triggers[0]
	require.NotNil(t, emoji.Emoji)
	assert.Equal(t, 3, emoji.Emoji.MaxEmoji)

	caps := chatList[0].Triggers[1]
	require.NotNil(t, caps.Custom)
	resp := caps.Check(trigger.Request{Content: "ALL CAPS"})
	assert.True(t, resp.Active)
	assert.Equal(t, "капс", resp.Reason)
}

func TestLoaderInverseFlag(t *testing.T) {
	path := writeConfig(t, `
triggers:
  - name: must-have-link
    type: link_disable
    inverse: true
group_chats:
  - id: -100
    triggers: [must-have-link]
`)
	l := NewLoader(path)
	chatList, err := l.Load()
	require.NoError(t, err)
	tr := chatList[0].Triggers[0]
	assert.True(t, tr.Inverse)
	// empty whitelist inverted: no urls activates
	assert.True(t, tr.Check(trigger.Request{}).Active)
}
