package events

import (
	"context"
	"errors"
	"testing"

	tbapi "github.com/OvyFlash/telegram-bot-api"
	"github.com/stretchr/testify/assert"

	"github.com/telemod/telebot/app/chats"
	"github.com/telemod/telebot/app/events/mocks"
)

func TestAdminRefresher_InstallsCaches(t *testing.T) {
	tbAPI := &mocks.TbAPIMock{
		GetChatFunc: func(config tbapi.ChatInfoConfig) (tbapi.ChatFullInfo, error) {
			info := tbapi.ChatFullInfo{}
			info.ID = config.ChatID
			info.Type = "supergroup"
			info.Title = "moderated group"
			return info, nil
		},
		GetChatAdministratorsFunc: func(config tbapi.ChatAdministratorsConfig) ([]tbapi.ChatMember, error) {
			return []tbapi.ChatMember{
				{User: &tbapi.User{ID: 1}, Status: "creator"},
				{User: &tbapi.User{ID: 2}, Status: "administrator"},
				{User: &tbapi.User{ID: 777}, Status: "administrator", CanDeleteMessages: true, CanRestrictMembers: true},
			}, nil
		},
	}

	registry := chats.NewRegistry()
	registry.Replace([]*chats.Chat{chats.New(-100, "")})
	refresher := &adminRefresher{tbAPI: tbAPI, registry: registry, botUserID: 777}
	refresher.Refresh(context.Background())

	chat, ok := registry.Get(-100)
	assert.True(t, ok)
	assert.Equal(t, "moderated group", chat.Name())
	assert.True(t, chat.IsAdmin(1))
	assert.True(t, chat.IsAdmin(2))
	assert.True(t, chat.IsOwner(1))
	assert.False(t, chat.IsOwner(2))

	info := chat.BotInfo()
	assert.NotNil(t, info)
	assert.True(t, info.CanDelete)
	assert.True(t, info.CanRestrict)
	assert.True(t, info.IsAdmin)
}

func TestAdminRefresher_KeepsChatOnTransportError(t *testing.T) {
	tbAPI := &mocks.TbAPIMock{
		GetChatFunc: func(config tbapi.ChatInfoConfig) (tbapi.ChatFullInfo, error) {
			return tbapi.ChatFullInfo{}, errors.New("connection reset by peer")
		},
	}

	registry := chats.NewRegistry()
	registry.Replace([]*chats.Chat{chats.New(-100, "moderated")})
	refresher := &adminRefresher{tbAPI: tbAPI, registry: registry, botUserID: 777}
	refresher.Refresh(context.Background())

	assert.Equal(t, 1, registry.Len(), "upstream outage keeps the chat moderated")
	assert.Empty(t, tbAPI.GetChatAdministratorsCalls())
}

func TestAdminRefresher_EvictsGoneChat(t *testing.T) {
	tbAPI := &mocks.TbAPIMock{
		GetChatFunc: func(config tbapi.ChatInfoConfig) (tbapi.ChatFullInfo, error) {
			return tbapi.ChatFullInfo{}, &tbapi.Error{Code: 400, Message: "Bad Request: chat not found"}
		},
	}

	registry := chats.NewRegistry()
	registry.Replace([]*chats.Chat{chats.New(-100, "moderated")})
	refresher := &adminRefresher{tbAPI: tbAPI, registry: registry, botUserID: 777}
	refresher.Refresh(context.Background())

	assert.Equal(t, 0, registry.Len())
}

func TestAdminRefresher_EvictsNonGroups(t *testing.T) {
	tbAPI := &mocks.TbAPIMock{
		GetChatFunc: func(config tbapi.ChatInfoConfig) (tbapi.ChatFullInfo, error) {
			info := tbapi.ChatFullInfo{}
			info.ID = config.ChatID
			info.Type = "private"
			return info, nil
		},
	}

	registry := chats.NewRegistry()
	registry.Replace([]*chats.Chat{chats.New(-100, "")})
	refresher := &adminRefresher{tbAPI: tbAPI, registry: registry, botUserID: 777}
	refresher.Refresh(context.Background())

	assert.Equal(t, 0, registry.Len())
	assert.Empty(t, tbAPI.GetChatAdministratorsCalls())
}
