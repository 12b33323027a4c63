package trigger

import (
	"strconv"

	"github.com/forPelevin/gomoji"
)

// EmojiParams is a payload for emoji_limit triggers, activates when the
// message carries more emojis than allowed. CollectAll counts every
// occurrence, not just distinct emojis.
type EmojiParams struct {
	MaxEmoji int
}

func (p *EmojiParams) check(req Request) Response {
	count := len(gomoji.CollectAll(req.Content))
	if count > p.MaxEmoji {
		return Response{Active: true, Reason: "эмодзи: " + strconv.Itoa(count)}
	}
	return Response{}
}
