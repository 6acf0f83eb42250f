package handlers

import (
	"context"
	"strings"

	telegoapi "gatedrop-bot/pkg/telegoapi"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// HandlePrivateMessage handles a non-command private message: an answer to a
// pending operator prompt, or else a message forwarded to the forward channel.
func (h *MessageHandler) HandlePrivateMessage(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	if handled, err := h.HandleOperatorInput(ctx, bot, message); handled {
		return err
	}
	return h.forward(ctx, bot, message)
}

// TrackUser records the sender as a known user active today.
func (h *MessageHandler) TrackUser(ctx context.Context, user *telego.User) {
	if user == nil {
		return
	}
	if err := h.Delivery.TrackUser(ctx, user.ID); err != nil {
		h.Log.Error("failed to track user", "user_id", user.ID, "error", err)
	}
}

func (h *MessageHandler) forward(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	if h.Config.ForwardChannelID == 0 {
		return nil
	}
	// Bare commands are not worth forwarding.
	if text := strings.TrimSpace(message.Text); strings.HasPrefix(text, "/") && len(strings.Fields(text)) == 1 {
		return nil
	}
	_, err := bot.ForwardMessage(ctx, &telego.ForwardMessageParams{
		ChatID:     tu.ID(h.Config.ForwardChannelID),
		FromChatID: tu.ID(message.Chat.ID),
		MessageID:  message.MessageID,
	})
	if err != nil {
		h.Log.Error("error forwarding message", "chat_id", message.Chat.ID, "message_id", message.MessageID, "error", err)
	}
	return nil
}
