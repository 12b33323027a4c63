package events

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	tbapi "github.com/OvyFlash/telegram-bot-api"
	"github.com/go-pkgz/repeater/v2"

	"github.com/telemod/telebot/app/chats"
)

// adminRefresher re-discovers each registered chat from upstream: label,
// administrator and owner sets and the bot's own privileges. Chats reported
// gone or not a group anymore are evicted from the registry.
type adminRefresher struct {
	tbAPI     TbAPI
	registry  *chats.Registry
	botUserID int64
}

// Refresh walks the current snapshot, chat by chat. Errors on a single chat
// don't stop the walk.
func (a *adminRefresher) Refresh(ctx context.Context) {
	for _, chat := range a.registry.Snapshot() {
		if err := a.refreshChat(ctx, chat); err != nil {
			log.Printf("[WARN] failed to refresh chat %d: %v", chat.ID, err)
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (a *adminRefresher) refreshChat(ctx context.Context, chat *chats.Chat) error {
	var info tbapi.ChatFullInfo
	err := repeater.NewFixed(3, time.Second).Do(ctx, func() error {
		var e error
		info, e = a.tbAPI.GetChat(tbapi.ChatInfoConfig{ChatConfig: tbapi.ChatConfig{ChatID: chat.ID}})
		return e
	})
	if err != nil {
		// only a platform rejection means the chat is gone, a transport
		// failure keeps it moderated until the next refresh
		var apiErr *tbapi.Error
		if !errors.As(err, &apiErr) {
			return fmt.Errorf("chat info call failed: %w", err)
		}
		log.Printf("[WARN] chat %d not available, removed from registry: %v", chat.ID, err)
		a.registry.Remove(chat.ID)
		return nil
	}

	if info.Type != "group" && info.Type != "supergroup" {
		log.Printf("[INFO] chat %d is %q, not a group, removed from registry", chat.ID, info.Type)
		a.registry.Remove(chat.ID)
		return nil
	}
	chat.SetName(info.Title)

	admins, err := a.tbAPI.GetChatAdministrators(tbapi.ChatAdministratorsConfig{
		ChatConfig: tbapi.ChatConfig{ChatID: chat.ID}})
	if err != nil {
		return err
	}

	adminIDs := make([]int64, 0, len(admins))
	var ownerIDs []int64
	for _, admin := range admins {
		if admin.User == nil {
			continue
		}
		adminIDs = append(adminIDs, admin.User.ID)
		if admin.Status == "creator" {
			ownerIDs = append(ownerIDs, admin.User.ID)
		}
		if admin.User.ID == a.botUserID {
			chat.SetBotInfo(&chats.BotInfo{
				UserID:      a.botUserID,
				CanDelete:   admin.CanDeleteMessages,
				CanRestrict: admin.CanRestrictMembers,
				IsAdmin:     true,
			})
		}
	}
	chat.SetAdminIDs(adminIDs)
	chat.SetOwnerIDs(ownerIDs)
	log.Printf("[DEBUG] chat %d (%s) refreshed, %d admins, %d owners",
		chat.ID, chat.Name(), len(adminIDs), len(ownerIDs))
	return nil
}
