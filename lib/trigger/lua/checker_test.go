package lua

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telemod/telebot/lib/trigger"
)

func writeScript(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestCheckerLoad(t *testing.T) {
	c := NewChecker()
	defer c.Close()

	script := writeScript(t, "promo.lua", `
function check(req)
    if string.find(string.lower(req.text), "promo") then
        return true, "промо: " .. req.text
    end
    return false, ""
end
`)
	check, err := c.Load(script)
	require.NoError(t, err)

	resp := check(trigger.Request{Content: "big PROMO today", UserID: 42, ChatID: -100})
	assert.True(t, resp.Active)
	assert.Contains(t, resp.Reason, "промо:")

	resp = check(trigger.Request{Content: "nothing"})
	assert.False(t, resp.Active)
	assert.Empty(t, resp.Reason)
}

func TestCheckerDefaultReason(t *testing.T) {
	c := NewChecker()
	defer c.Close()

	script := writeScript(t, "always.lua", `
function check(req)
    return true
end
`)
	check, err := c.Load(script)
	require.NoError(t, err)

	resp := check(trigger.Request{Content: "x"})
	assert.True(t, resp.Active)
	assert.Equal(t, "скрипт: always", resp.Reason)
}

func TestCheckerBadScript(t *testing.T) {
	c := NewChecker()
	defer c.Close()

	_, err := c.Load(writeScript(t, "broken.lua", `this is not lua at all (`))
	assert.Error(t, err)

	_, err = c.Load(writeScript(t, "nocheck.lua", `x = 1`))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "must define a 'check' function")
}

func TestCheckerRuntimeErrorNotActivated(t *testing.T) {
	c := NewChecker()
	defer c.Close()

	script := writeScript(t, "boom.lua", `
function check(req)
    error("boom")
end
`)
	check, err := c.Load(script)
	require.NoError(t, err)

	resp := check(trigger.Request{Content: "x"})
	assert.False(t, resp.Active)
}
