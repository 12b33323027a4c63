// Package events implements the processing side of the bot: workers decoding
// webhook updates and running them through the trigger pipeline, the outbound
// dispatcher owning all platform calls, the spam ledger with ban escalation
// and the periodic admin refresher.
package events

import (
	"log"
	"time"

	tbapi "github.com/OvyFlash/telegram-bot-api"

	"github.com/telemod/telebot/app/bot"
)

//go:generate moq --out mocks/tb_api.go --pkg mocks --with-resets --skip-ensure . TbAPI

// TbAPI is an interface for telegram bot API, only subset of methods used
type TbAPI interface {
	GetMe() (tbapi.User, error)
	GetChat(config tbapi.ChatInfoConfig) (tbapi.ChatFullInfo, error)
	GetChatAdministrators(config tbapi.ChatAdministratorsConfig) ([]tbapi.ChatMember, error)
	Send(c tbapi.Chattable) (tbapi.Message, error)
	Request(c tbapi.Chattable) (*tbapi.APIResponse, error)
}

// AuditEntry is a single moderation action, written to the audit log as a
// json line.
type AuditEntry struct {
	Action   string    `json:"action"` // "delete" or "ban"
	ChatID   int64     `json:"chat_id"`
	MsgID    int       `json:"msg_id,omitempty"`
	UserID   int64     `json:"user_id,omitempty"`
	UserName string    `json:"user_name,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	Time     time.Time `json:"time"`
}

// AuditLogger is an interface for the moderation audit log
type AuditLogger interface {
	Save(entry AuditEntry)
}

// AuditLoggerFunc is a function that implements AuditLogger interface
type AuditLoggerFunc func(entry AuditEntry)

// Save is a function that implements AuditLogger interface
func (f AuditLoggerFunc) Save(entry AuditEntry) {
	f(entry)
}

// transform converts platform-level message to internal bot.Message
func transform(msg *tbapi.Message) *bot.Message {
	transformEntities := func(entities []tbapi.MessageEntity) []bot.Entity {
		if len(entities) == 0 {
			return nil
		}
		result := make([]bot.Entity, 0, len(entities))
		for _, entity := range entities {
			e := bot.Entity{
				Type:   entity.Type,
				Offset: entity.Offset,
				Length: entity.Length,
				URL:    entity.URL,
			}
			if entity.User != nil {
				e.User = &bot.User{
					ID:        entity.User.ID,
					Username:  entity.User.UserName,
					FirstName: entity.User.FirstName,
					LastName:  entity.User.LastName,
				}
			}
			result = append(result, e)
		}
		return result
	}

	message := bot.Message{
		ID:              msg.MessageID,
		ChatID:          msg.Chat.ID,
		Sent:            msg.Time(),
		Text:            msg.Text,
		Caption:         msg.Caption,
		MediaGroupID:    msg.MediaGroupID,
		Entities:        transformEntities(msg.Entities),
		CaptionEntities: transformEntities(msg.CaptionEntities),
	}

	if msg.From != nil {
		message.From = bot.User{
			ID:        msg.From.ID,
			Username:  msg.From.UserName,
			FirstName: msg.From.FirstName,
			LastName:  msg.From.LastName,
			IsPremium: msg.From.IsPremium,
		}
	}
	return &message
}

// send a message to the telegram in html mode with link previews disabled
func send(tbMsg tbapi.MessageConfig, tbAPI TbAPI) (tbapi.Message, error) {
	tbMsg.ParseMode = tbapi.ModeHTML
	tbMsg.LinkPreviewOptions = tbapi.LinkPreviewOptions{IsDisabled: true}
	res, err := tbAPI.Send(tbMsg)
	if err != nil {
		log.Printf("[WARN] failed to send message to chat %d: %v", tbMsg.ChatID, err)
	}
	return res, err
}
