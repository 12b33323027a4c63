// Package config loads the declarative rule+chat document. Per-item shape
// violations are logged, counted and skipped so one broken trigger never
// takes the bot down; a top-level parse failure leaves the previous live
// configuration in effect (the loader returns an error and the caller keeps
// the old registry).
package config

import (
	"fmt"
	"log"
	"os"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/telemod/telebot/app/chats"
	"github.com/telemod/telebot/lib/trigger"
	"github.com/telemod/telebot/lib/trigger/lua"
)

// Document is the top-level YAML shape.
type Document struct {
	Triggers   []TriggerDef `yaml:"triggers"`
	GroupChats []ChatDef    `yaml:"group_chats"`
}

// LinkItemDef is a whitelist/blacklist entry.
type LinkItemDef struct {
	Host  string   `yaml:"host"`
	Paths []string `yaml:"paths"`
}

// TriggerDef is a single trigger definition. Pointer fields distinguish
// "absent" from zero values for the defaults-to-true knobs.
type TriggerDef struct {
	Name            string        `yaml:"name"`
	Active          *bool         `yaml:"active"`
	Description     string        `yaml:"description"`
	Type            string        `yaml:"type"`
	WhiteList       []LinkItemDef `yaml:"white_list"`
	BlackList       []LinkItemDef `yaml:"black_list"`
	WordList        []string      `yaml:"word_list"`
	RegexpRemove    []string      `yaml:"regexp_remove"`
	RegexpList      []string      `yaml:"regexp_list"`
	CaseInsensitive *bool         `yaml:"case_insensitive"`
	Multiline       bool          `yaml:"multiline"`
	Analyze         string        `yaml:"analyze"`
	SkipAdmins      bool          `yaml:"skip_admins"`
	WhiteUsers      []int64       `yaml:"white_users"`
	Inverse         bool          `yaml:"inverse"`
	ImmediatelyBan  bool          `yaml:"immediately_ban"`
	MaxEmoji        *int          `yaml:"max_emoji"`
	Script          string        `yaml:"script"`
}

// ChatDef is a single group chat definition.
type ChatDef struct {
	ID            int64    `yaml:"id"`
	Name          string   `yaml:"name"`
	Triggers      []string `yaml:"triggers"`
	SkipAdmins    *bool    `yaml:"skip_admins"`
	PremiumBan    bool     `yaml:"premium_ban"`
	WhiteUsers    []int64  `yaml:"white_users"`
	UserSpamLimit *int     `yaml:"user_spam_limit"`
	UserRestricts []int    `yaml:"user_restricts"`
}

// Loader reads and validates the config file. Parse errors accumulate in a
// process-wide counter exposed with ParseErrors.
type Loader struct {
	file        string
	luaChecker  *lua.Checker
	parseErrors atomic.Int64
}

// NewLoader makes a loader for the given file. The lua checker is created
// lazily on the first lua trigger.
func NewLoader(file string) *Loader {
	return &Loader{file: file}
}

// ParseErrors returns the number of per-item config errors seen so far.
func (l *Loader) ParseErrors() int64 {
	return l.parseErrors.Load()
}

// Load reads the document and builds the chat list with resolved triggers.
// Bad triggers and bad chats are skipped with a count; a missing trigger name
// in a chat is logged but the chat is still produced with the triggers that
// were resolved. A top-level failure returns an error and nothing else.
func (l *Loader) Load() ([]*chats.Chat, error) {
	data, err := os.ReadFile(l.file)
	if err != nil {
		return nil, fmt.Errorf("can't read config %s: %w", l.file, err)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		l.parseErrors.Add(1)
		return nil, fmt.Errorf("can't parse config %s: %w", l.file, err)
	}

	errs := new(multierror.Error)

	triggers := map[string]*trigger.Trigger{}
	for i, def := range doc.Triggers {
		trig, err := l.makeTrigger(def)
		if err != nil {
			l.parseErrors.Add(1)
			errs = multierror.Append(errs, fmt.Errorf("trigger #%d: %w", i, err))
			continue
		}
		if _, ok := triggers[trig.Name]; ok {
			l.parseErrors.Add(1)
			errs = multierror.Append(errs, fmt.Errorf("trigger #%d: duplicate name %q", i, trig.Name))
			continue
		}
		triggers[trig.Name] = trig
	}

	var res []*chats.Chat
	seen := map[int64]struct{}{}
	for i, def := range doc.GroupChats {
		if def.ID == 0 {
			l.parseErrors.Add(1)
			errs = multierror.Append(errs, fmt.Errorf("chat #%d: id is required and non-zero", i))
			continue
		}
		if _, ok := seen[def.ID]; ok {
			l.parseErrors.Add(1)
			errs = multierror.Append(errs, fmt.Errorf("chat #%d: duplicate id %d", i, def.ID))
			continue
		}
		seen[def.ID] = struct{}{}
		res = append(res, l.makeChat(def, triggers))
	}

	if err := errs.ErrorOrNil(); err != nil {
		log.Printf("[WARN] config loaded with %d error(s): %v", len(errs.Errors), err)
	}
	log.Printf("[INFO] config loaded from %s: %d trigger(s), %d chat(s)", l.file, len(triggers), len(res))
	return res, nil
}

func (l *Loader) makeChat(def ChatDef, triggers map[string]*trigger.Trigger) *chats.Chat {
	chat := chats.New(def.ID, def.Name)
	chat.SkipAdmins = true
	if def.SkipAdmins != nil {
		chat.SkipAdmins = *def.SkipAdmins
	}
	chat.PremiumBan = def.PremiumBan
	chat.WhiteUsers = def.WhiteUsers
	chat.UserSpamLimit = 5
	if def.UserSpamLimit != nil {
		chat.UserSpamLimit = *def.UserSpamLimit
	}
	chat.UserRestricts = def.UserRestricts

	for _, name := range def.Triggers {
		trig, ok := triggers[name]
		if !ok {
			log.Printf("[WARN] chat %d refers to unknown trigger %q, skipped", def.ID, name)
			continue
		}
		chat.Triggers = append(chat.Triggers, trig)
	}
	return chat
}

func (l *Loader) makeTrigger(def TriggerDef) (*trigger.Trigger, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	kind, err := trigger.ParseKind(def.Type)
	if err != nil {
		return nil, err
	}

	res := &trigger.Trigger{
		Name:           def.Name,
		Kind:           kind,
		Active:         def.Active == nil || *def.Active,
		Description:    def.Description,
		SkipAdmins:     def.SkipAdmins,
		WhiteUsers:     def.WhiteUsers,
		Inverse:        def.Inverse,
		ImmediatelyBan: def.ImmediatelyBan,
	}

	caseInsensitive := def.CaseInsensitive == nil || *def.CaseInsensitive
	analyze := def.Analyze
	if analyze == "" {
		analyze = trigger.AnalyzeContent
	}
	if analyze != trigger.AnalyzeContent && analyze != trigger.AnalyzeUsername {
		return nil, fmt.Errorf("trigger %q: bad analyze %q", def.Name, def.Analyze)
	}

	switch kind {
	case trigger.LinkDisable, trigger.LinkEnable:
		res.Link = &trigger.LinkParams{
			WhiteList: makeLinkItems(def.WhiteList),
			BlackList: makeLinkItems(def.BlackList),
		}
	case trigger.Word:
		if len(def.WordList) == 0 {
			return nil, fmt.Errorf("trigger %q: word_list is required", def.Name)
		}
		res.Words = &trigger.WordParams{CaseInsensitive: caseInsensitive, WordList: def.WordList}
	case trigger.Regexp:
		if len(def.RegexpList) == 0 {
			return nil, fmt.Errorf("trigger %q: regexp_list is required", def.Name)
		}
		res.Re = trigger.NewRegexpParams(caseInsensitive, def.Multiline, analyze, def.RegexpRemove, def.RegexpList)
	case trigger.EmojiLimit:
		if def.MaxEmoji == nil {
			return nil, fmt.Errorf("trigger %q: max_emoji is required", def.Name)
		}
		res.Emoji = &trigger.EmojiParams{MaxEmoji: *def.MaxEmoji}
	case trigger.Lua:
		if def.Script == "" {
			return nil, fmt.Errorf("trigger %q: script is required", def.Name)
		}
		if l.luaChecker == nil {
			l.luaChecker = lua.NewChecker()
		}
		check, err := l.luaChecker.Load(def.Script)
		if err != nil {
			return nil, fmt.Errorf("trigger %q: %w", def.Name, err)
		}
		res.Custom = check
	}
	return res, nil
}

func makeLinkItems(defs []LinkItemDef) []trigger.LinkItem {
	res := make([]trigger.LinkItem, 0, len(defs))
	for _, d := range defs {
		res = append(res, trigger.LinkItem{Host: d.Host, Paths: d.Paths})
	}
	return res
}
