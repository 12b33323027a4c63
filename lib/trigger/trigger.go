// Package trigger implements the rule engine of the moderation bot.
// Each trigger classifies a single prepared message as offending or not and
// reports a short human-readable reason for the positive match.
// Triggers are built once by the config loader and never mutated afterwards,
// so checks are safe to run from multiple workers concurrently.
package trigger

import (
	"fmt"
	"strings"
)

// Kind is a trigger variant tag.
type Kind string

// supported trigger kinds
const (
	LinkDisable Kind = "link_disable"
	LinkEnable  Kind = "link_enable"
	Word        Kind = "word"
	Regexp      Kind = "regexp"
	EmojiLimit  Kind = "emoji_limit"
	Lua         Kind = "lua"
)

// analyze targets for regexp triggers
const (
	AnalyzeContent  = "content"
	AnalyzeUsername = "username"
)

// Request is a message prepared for evaluation. Content is the message text
// concatenated with the caption (caption first) with all url-entity substrings
// removed and trimmed. UserName is "first last username", trimmed.
// URLs are extracted from url and text_link entities, in order of appearance.
type Request struct {
	Content  string
	UserName string
	URLs     []string
	ChatID   int64
	UserID   int64
}

// Response is a result of a single trigger evaluation.
// Reason is empty unless Active is true.
type Response struct {
	Active bool
	Reason string
}

// CheckFunc is an externally supplied check, used by the lua kind.
type CheckFunc func(req Request) Response

// Trigger is a tagged variant of a moderation rule. Common attributes live in
// the header, the kind-specific payload is one of the params pointers.
type Trigger struct {
	Name           string
	Kind           Kind
	Active         bool
	Description    string
	SkipAdmins     bool
	WhiteUsers     []int64
	Inverse        bool
	ImmediatelyBan bool

	Link   *LinkParams
	Words  *WordParams
	Re     *RegexpParams
	Emoji  *EmojiParams
	Custom CheckFunc // set for lua triggers by the loader
}

// Check evaluates the trigger against the request. The kind-specific result is
// xor-ed with the Inverse flag; the reason is dropped when the final result is
// not an activation.
func (t *Trigger) Check(req Request) Response {
	resp := t.check(req)
	if t.Inverse {
		resp.Active = !resp.Active
	}
	if !resp.Active {
		resp.Reason = ""
	}
	return resp
}

func (t *Trigger) check(req Request) Response {
	switch t.Kind {
	case LinkDisable, LinkEnable:
		if t.Link == nil {
			return Response{}
		}
		return t.Link.check(t.Kind, req)
	case Word:
		if t.Words == nil {
			return Response{}
		}
		return t.Words.check(req)
	case Regexp:
		if t.Re == nil {
			return Response{}
		}
		return t.Re.check(req)
	case EmojiLimit:
		if t.Emoji == nil {
			return Response{}
		}
		return t.Emoji.check(req)
	case Lua:
		if t.Custom == nil {
			return Response{}
		}
		return t.Custom(req)
	}
	return Response{}
}

// Whitelisted reports if the user id is in the per-trigger whitelist.
func (t *Trigger) Whitelisted(userID int64) bool {
	for _, id := range t.WhiteUsers {
		if id == userID {
			return true
		}
	}
	return false
}

func (t *Trigger) String() string {
	return fmt.Sprintf("%s (%s)", t.Name, t.Kind)
}

// ParseKind converts a config string to a Kind. The legacy "link" name is an
// alias for link_disable.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.TrimSpace(s)) {
	case "link", LinkDisable:
		return LinkDisable, nil
	case LinkEnable:
		return LinkEnable, nil
	case Word:
		return Word, nil
	case Regexp:
		return Regexp, nil
	case EmojiLimit:
		return EmojiLimit, nil
	case Lua:
		return Lua, nil
	}
	return "", fmt.Errorf("unknown trigger type %q", s)
}
