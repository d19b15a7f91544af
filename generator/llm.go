package generator

import (
	"context"

	"coze_note_generator/coze"
)

// ContentBackend 抽象文案生成通道，便于替换/Mock。返回完整消息文本，
// 第一行是标题，其余为正文。
type ContentBackend interface {
	Complete(ctx context.Context, instruction string) (string, error)
}

// CozeBackend generates copy through a Coze bot's streamed chat endpoint.
type CozeBackend struct {
	Client         *coze.Client
	BotID          string
	UserID         string
	ConversationID string
}

// Complete sends the instruction to the bot and folds the streamed response
// into the final message text.
func (b *CozeBackend) Complete(ctx context.Context, instruction string) (string, error) {
	raw, err := b.Client.StreamChat(ctx, b.BotID, b.UserID, "text", b.ConversationID,
		[]coze.ContentElement{coze.TextElement(instruction)})
	if err != nil {
		return "", err
	}
	return coze.ParseStream(raw), nil
}
