// Package lua provides Lua-scripted triggers. A script defines a global
// "check" function taking a table {text, username, user_id, chat_id} and
// returning a boolean (activated) and a string (reason).
package lua

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/telemod/telebot/lib/trigger"
)

// Checker loads Lua scripts and turns them into trigger check functions.
// A single Lua VM is shared by all scripts; calls are serialized because
// LState is not safe for concurrent use.
type Checker struct {
	mu       sync.Mutex
	vm       *lua.LState
	checkers map[string]*lua.LFunction
}

// NewChecker creates a new Checker with a fresh Lua VM.
func NewChecker() *Checker {
	return &Checker{
		vm:       lua.NewState(),
		checkers: make(map[string]*lua.LFunction),
	}
}

// Load loads a Lua script and returns its check function wrapped for the
// trigger engine. The script name is the file name without extension.
func (c *Checker) Load(path string) (trigger.CheckFunc, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.vm.DoFile(path); err != nil {
		return nil, fmt.Errorf("failed to load lua script %s: %w", path, err)
	}

	checkFunc := c.vm.GetGlobal("check")
	if checkFunc.Type() != lua.LTFunction {
		return nil, fmt.Errorf("script %s must define a 'check' function", path)
	}

	name := filepath.Base(path)
	name = name[:len(name)-len(filepath.Ext(name))]
	fn := checkFunc.(*lua.LFunction)
	c.checkers[name] = fn

	return c.makeCheck(name, fn), nil
}

// Close shuts down the Lua VM.
func (c *Checker) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vm.Close()
}

func (c *Checker) makeCheck(name string, fn *lua.LFunction) trigger.CheckFunc {
	return func(req trigger.Request) trigger.Response {
		c.mu.Lock()
		defer c.mu.Unlock()

		reqTable := c.vm.NewTable()
		reqTable.RawSetString("text", lua.LString(req.Content))
		reqTable.RawSetString("username", lua.LString(req.UserName))
		reqTable.RawSetString("user_id", lua.LNumber(req.UserID))
		reqTable.RawSetString("chat_id", lua.LNumber(req.ChatID))

		if err := c.vm.CallByParam(lua.P{Fn: fn, NRet: 2, Protect: true}, reqTable); err != nil {
			// a failing script never activates, same as an invalid regexp pattern
			log.Printf("[WARN] lua checker %q failed: %v", name, err)
			return trigger.Response{}
		}

		reason := c.vm.Get(-1)
		active := c.vm.Get(-2)
		c.vm.Pop(2)

		resp := trigger.Response{}
		if b, ok := active.(lua.LBool); ok && bool(b) {
			resp.Active = true
			if s, ok := reason.(lua.LString); ok {
				resp.Reason = string(s)
			}
			if resp.Reason == "" {
				resp.Reason = "скрипт: " + name
			}
		}
		return resp
	}
}
