package auth

import (
	"context"
	"log/slog"

	"gatedrop-bot/pkg/telegoapi"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// Checker answers who may use the bot: the operator, and users who joined
// every required channel.
type Checker struct {
	bot        telegoapi.BotAPI
	operatorID int64
	required   []int64
	log        *slog.Logger
}

// NewChecker creates a Checker. required lists channel ids in the order they
// are presented to users.
func NewChecker(bot telegoapi.BotAPI, operatorID int64, required []int64, log *slog.Logger) *Checker {
	return &Checker{
		bot:        bot,
		operatorID: operatorID,
		required:   append([]int64(nil), required...),
		log:        log,
	}
}

// IsOperator reports whether userID is the bot operator.
func (c *Checker) IsOperator(userID int64) bool {
	return userID == c.operatorID
}

// MissingChannels returns the required channels userID has not joined, in
// configured order. A channel whose membership cannot be checked counts as
// missing.
func (c *Checker) MissingChannels(ctx context.Context, userID int64) []int64 {
	var missing []int64
	for _, channelID := range c.required {
		member, err := c.bot.GetChatMember(ctx, &telego.GetChatMemberParams{
			ChatID: tu.ID(channelID),
			UserID: userID,
		})
		if err != nil {
			c.log.Warn("membership check failed", "user_id", userID, "chat_id", channelID, "error", err)
			missing = append(missing, channelID)
			continue
		}
		if !isMember(member) {
			missing = append(missing, channelID)
		}
	}
	return missing
}

func isMember(member telego.ChatMember) bool {
	switch member.MemberStatus() {
	case telego.MemberStatusCreator, telego.MemberStatusAdministrator, telego.MemberStatusMember:
		return true
	}
	return false
}
