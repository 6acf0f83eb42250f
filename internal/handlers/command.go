package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gatedrop-bot/internal/delivery"
	"gatedrop-bot/internal/locales"
	"gatedrop-bot/internal/models"
	"gatedrop-bot/internal/quota"
	telegoapi "gatedrop-bot/pkg/telegoapi"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// HandleStart handles /start. With a token argument it redeems the batch link,
// otherwise it greets the user.
func (h *MessageHandler) HandleStart(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	if _, args := ParseCommand(message.Text); len(args) > 0 {
		return h.redeem(ctx, bot, message, args[0])
	}

	h.recordUserActivity(ctx, message.From.ID, ActionCommandStart, map[string]interface{}{"chat_id": message.Chat.ID})
	loc := h.localizer(message.From)
	if h.Auth.IsOperator(message.From.ID) {
		return h.send(ctx, bot, message.Chat.ID, loc.Get(locales.MsgAdminStart, nil), nil)
	}
	kb := urlKeyboard(loc.Get(locales.MsgJoinButton, nil), h.Config.JoinURL)
	return h.send(ctx, bot, message.Chat.ID, loc.Get(locales.MsgUserStart, nil), kb)
}

// redeem delivers a batch and explains any refusal.
func (h *MessageHandler) redeem(ctx context.Context, bot telegoapi.BotAPI, message telego.Message, token string) error {
	// Quota is charged before the first send, so delivery and its deletion
	// bookkeeping run to the end regardless of the update deadline.
	ctx = context.WithoutCancel(ctx)
	userID := message.From.ID
	chatID := message.Chat.ID
	loc := h.localizer(message.From)

	_, err := h.Delivery.Redeem(ctx, userID, token)
	var (
		membership *delivery.MembershipRequiredError
		exceeded   *delivery.QuotaExceededError
	)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, delivery.ErrInvalidLink):
		return h.send(ctx, bot, chatID, loc.Get(locales.MsgInvalidLink, nil), nil)
	case errors.As(err, &membership):
		rows := make([][]telego.InlineKeyboardButton, 0, len(membership.Channels)+1)
		for i, ch := range membership.Channels {
			url, ok := h.Config.Invites[ch]
			if !ok {
				url = "https://t.me/"
			}
			label := loc.Get(locales.MsgJoinChannelButton, map[string]interface{}{"Index": i + 1})
			rows = append(rows, tu.InlineKeyboardRow(tu.InlineKeyboardButton(label).WithURL(url)))
		}
		rows = append(rows, tu.InlineKeyboardRow(
			tu.InlineKeyboardButton(loc.Get(locales.MsgTryAgainButton, nil)).WithURL(h.deepLink(token))))
		return h.send(ctx, bot, chatID, loc.Get(locales.MsgMembershipRequired, nil), tu.InlineKeyboard(rows...))
	case errors.As(err, &exceeded):
		data := map[string]interface{}{"Limit": exceeded.Limit}
		if exceeded.Plan == models.PlanLimited {
			kb := urlKeyboard(loc.Get(locales.MsgRenewButton, nil), h.Config.RenewURL)
			return h.send(ctx, bot, chatID, loc.Get(locales.MsgLimitedExhausted, data), kb)
		}
		data["Mention"] = mention(userID, message.From.FirstName)
		kb := urlKeyboard(loc.Get(locales.MsgPayButton, nil), h.Config.PayURL)
		return h.send(ctx, bot, chatID, loc.Get(locales.MsgBasicExhausted, data), kb)
	default:
		return h.sendError(ctx, bot, chatID, message.From, fmt.Errorf("redeem %s: %w", token, err))
	}
}

// remaining splits d into whole days and leftover hours.
func remaining(d time.Duration) (days, hours int) {
	days = int(d / (24 * time.Hour))
	hours = int((d % (24 * time.Hour)) / time.Hour)
	return days, hours
}

// HandlePlan shows the caller's current plan.
func (h *MessageHandler) HandlePlan(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	userID := message.From.ID
	loc := h.localizer(message.From)
	h.recordUserActivity(ctx, userID, ActionCommandPlan, nil)

	st, ok := h.Subscriptions.Get(userID)
	if !ok || !st.Active {
		kb := urlKeyboard(loc.Get(locales.MsgBuyButton, nil), h.Config.PayURL)
		return h.send(ctx, bot, message.Chat.ID, loc.Get(locales.MsgBasicPlan, nil), kb)
	}

	extra := ""
	if st.Plan == models.PlanLimited {
		used := h.Quota.UsedToday(userID, quota.DayKey(h.Clock.Now(), h.Config.Location))
		extra = loc.Get(locales.MsgPlanLinksUsed, map[string]interface{}{
			"Used":  used,
			"Limit": quota.AllowedLinks(models.PlanLimited),
		})
	}
	if st.Upgraded {
		extra += loc.Get(locales.MsgPlanUpgradedNote, nil)
	}
	days, hours := remaining(st.Remaining)
	text := loc.Get(locales.MsgPremiumPlan, map[string]interface{}{
		"Purchased": h.formatTime(st.PurchasedAt),
		"Expires":   h.formatTime(st.EffectiveExpiry),
		"Days":      days,
		"Hours":     hours,
		"Extra":     extra,
	})
	return h.send(ctx, bot, message.Chat.ID, text, nil)
}

// HandlePay shows the payment link.
func (h *MessageHandler) HandlePay(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	loc := h.localizer(message.From)
	h.recordUserActivity(ctx, message.From.ID, ActionCommandPay, nil)
	kb := urlKeyboard(loc.Get(locales.MsgPayPlainButton, nil), h.Config.PayURL)
	return h.send(ctx, bot, message.Chat.ID, loc.Get(locales.MsgPay, nil), kb)
}

// HandleHelp lists the commands available to the caller.
func (h *MessageHandler) HandleHelp(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	loc := h.localizer(message.From)
	isOperator := h.Auth.IsOperator(message.From.ID)
	h.recordUserActivity(ctx, message.From.ID, ActionCommandHelp, map[string]interface{}{"is_operator": isOperator})
	if isOperator {
		return h.send(ctx, bot, message.Chat.ID, loc.Get(locales.MsgAdminHelp, nil), nil)
	}
	return h.send(ctx, bot, message.Chat.ID, loc.Get(locales.MsgUserHelp, nil), nil)
}

// SetupCommands publishes the public command menu.
func (h *MessageHandler) SetupCommands(ctx context.Context, bot telegoapi.BotAPI) error {
	loc := h.Locales.Localizer()
	commands := make([]telego.BotCommand, 0, len(h.commands))
	for _, cmd := range h.commands {
		if cmd.OperatorOnly || cmd.Description == "" {
			continue
		}
		commands = append(commands, telego.BotCommand{
			Command:     cmd.Command,
			Description: loc.Get(cmd.Description, nil),
		})
	}
	if err := bot.SetMyCommands(ctx, &telego.SetMyCommandsParams{Commands: commands}); err != nil {
		return fmt.Errorf("failed to set bot commands: %w", err)
	}
	h.Log.Info("bot commands set", "count", len(commands))
	return nil
}
