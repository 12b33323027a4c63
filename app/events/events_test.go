package events

import (
	"testing"
	"time"

	tbapi "github.com/OvyFlash/telegram-bot-api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransform(t *testing.T) {
	msg := &tbapi.Message{
		MessageID:    42,
		Date:         1700000000,
		Text:         "see https://evil.test/x",
		Caption:      "album caption",
		MediaGroupID: "mg-1",
		From: &tbapi.User{
			ID:        11,
			UserName:  "spammer",
			FirstName: "John",
			LastName:  "Doe",
			IsPremium: true,
		},
		Entities: []tbapi.MessageEntity{
			{Type: "url", Offset: 4, Length: 19},
			{Type: "text_link", Offset: 0, Length: 3, URL: "https://hidden.test"},
		},
	}
	msg.Chat.ID = -100

	res := transform(msg)
	assert.Equal(t, 42, res.ID)
	assert.Equal(t, int64(-100), res.ChatID)
	assert.Equal(t, "see https://evil.test/x", res.Text)
	assert.Equal(t, "album caption", res.Caption)
	assert.Equal(t, "mg-1", res.MediaGroupID)
	assert.Equal(t, time.Unix(1700000000, 0), res.Sent)

	assert.Equal(t, int64(11), res.From.ID)
	assert.Equal(t, "spammer", res.From.Username)
	assert.Equal(t, "John Doe spammer", res.From.HandleName())
	assert.True(t, res.From.IsPremium)

	require.Len(t, res.Entities, 2)
	assert.Equal(t, "url", res.Entities[0].Type)
	assert.Equal(t, "https://hidden.test", res.Entities[1].URL)

	assert.Equal(t, []string{"https://evil.test/x", "https://hidden.test"}, res.URLs())
}

func TestTransform_NoSender(t *testing.T) {
	msg := &tbapi.Message{MessageID: 1, Date: 1700000000}
	msg.Chat.ID = -5
	res := transform(msg)
	assert.Equal(t, int64(0), res.From.ID)
	assert.Empty(t, res.Entities)
}
