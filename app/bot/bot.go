// Package bot provides the wire-level message model shared by the webhook
// ingress and the processing pipeline: users, typed entities and messages,
// plus the text preparation helpers used by the trigger engine. Entity
// offsets follow the platform convention and count UTF-16 code units.
package bot

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf16"
)

// User is a message sender.
type User struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
	IsPremium bool
}

// HandleName makes "first last username" string, trimmed. Used for triggers
// analyzing the sender instead of the content.
func (u User) HandleName() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{u.FirstName, u.LastName, u.Username} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

func (u User) String() string {
	if u.Username != "" {
		return fmt.Sprintf("%q (%d)", u.Username, u.ID)
	}
	return fmt.Sprintf("%q (%d)", strings.TrimSpace(u.FirstName+" "+u.LastName), u.ID)
}

// Entity is a typed substring range inside a message, offset and length in
// UTF-16 code units. URL is set for text_link entities only.
type Entity struct {
	Type   string
	Offset int
	Length int
	URL    string
	User   *User
}

// Message is a decoded inbound message, immutable in the pipeline.
type Message struct {
	ID              int
	ChatID          int64
	From            User
	Sent            time.Time
	Text            string
	Caption         string
	MediaGroupID    string
	Entities        []Entity
	CaptionEntities []Entity
}

// CleanText builds the trigger-engine content: caption and text with all url
// entity substrings removed, joined with a newline (caption first), trimmed.
// Stripping an already stripped text is a no-op.
func (m *Message) CleanText() string {
	caption := removeEntities(m.Caption, m.CaptionEntities, "url")
	text := removeEntities(m.Text, m.Entities, "url")
	return strings.TrimSpace(strings.TrimSpace(caption) + "\n" + strings.TrimSpace(text))
}

// URLs collects urls from text and caption entities, in order of appearance.
// For url entities the link is the covered substring, for text_link it is the
// entity's explicit target.
func (m *Message) URLs() []string {
	var res []string
	collect := func(text string, entities []Entity) {
		for _, e := range entities {
			switch e.Type {
			case "url":
				if u := utf16Slice(text, e.Offset, e.Length); u != "" {
					res = append(res, u)
				}
			case "text_link":
				if e.URL != "" {
					res = append(res, e.URL)
				}
			}
		}
	}
	collect(m.Text, m.Entities)
	collect(m.Caption, m.CaptionEntities)
	return res
}

// utf16Slice cuts a substring by UTF-16 offset and length, the way entity
// ranges are defined on the wire.
func utf16Slice(text string, offset, length int) string {
	units := utf16.Encode([]rune(text))
	if offset < 0 || length < 0 || offset+length > len(units) {
		return ""
	}
	return string(utf16.Decode(units[offset : offset+length]))
}

// removeEntities deletes every entity range of the given type from the text.
func removeEntities(text string, entities []Entity, entType string) string {
	if text == "" || len(entities) == 0 {
		return text
	}
	units := utf16.Encode([]rune(text))
	keep := make([]bool, len(units))
	for i := range keep {
		keep[i] = true
	}
	for _, e := range entities {
		if e.Type != entType {
			continue
		}
		for i := e.Offset; i < e.Offset+e.Length && i < len(units); i++ {
			if i >= 0 {
				keep[i] = false
			}
		}
	}
	res := make([]uint16, 0, len(units))
	for i, u := range units {
		if keep[i] {
			res = append(res, u)
		}
	}
	return string(utf16.Decode(res))
}

// EscapeNotice escapes the exact three substrings re-interpreted by the
// platform in HTML parse mode notices: "+", "<" and ">".
func EscapeNotice(text string) string {
	text = strings.ReplaceAll(text, "+", "&#43;")
	text = strings.ReplaceAll(text, "<", "&lt;")
	text = strings.ReplaceAll(text, ">", "&gt;")
	return text
}

// FormatNotice composes the explanatory message posted after a delete, in
// HTML parse mode. The original text, the activation reason and the trigger
// name are always present, the description only when the rule has one.
func FormatNotice(origText, reason, trigName, trigDesc string) string {
	var b strings.Builder
	b.WriteString("Сообщение удалено:\n<i>")
	b.WriteString(EscapeNotice(origText))
	b.WriteString("</i>\n")
	b.WriteString("Причина: ")
	b.WriteString(EscapeNotice(reason))
	b.WriteString(fmt.Sprintf(" (правило %q)", trigName))
	if trigDesc != "" {
		b.WriteString("\n")
		b.WriteString(EscapeNotice(trigDesc))
	}
	return b.String()
}
