package handlers

import (
	"bytes"
	"context"
	"strconv"
	"strings"

	"gatedrop-bot/internal/export"
	"gatedrop-bot/internal/locales"
	"gatedrop-bot/internal/models"
	"gatedrop-bot/internal/quota"
	telegoapi "gatedrop-bot/pkg/telegoapi"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// HandleBatch starts the batch conversation: the operator forwards the first
// and then the last post of the range from the database channel.
func (h *MessageHandler) HandleBatch(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	h.setPending(message.Chat.ID, pendingInput{kind: inputBatchFirst})
	return h.send(ctx, bot, message.Chat.ID, h.localizer(message.From).Get(locales.MsgBatchAskFirst, nil), nil)
}

// HandleLinks lists every batch link in creation order.
func (h *MessageHandler) HandleLinks(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	loc := h.localizer(message.From)
	summaries := h.Links.List()
	if len(summaries) == 0 {
		return h.send(ctx, bot, message.Chat.ID, loc.Get(locales.MsgNoLinks, nil), nil)
	}
	lines := make([]string, 0, len(summaries))
	for i, s := range summaries {
		lines = append(lines, loc.Get(locales.MsgLinkLine, map[string]interface{}{
			"Index": i + 1,
			"Link":  h.deepLink(s.Token),
			"Start": s.RangeStart,
			"End":   s.RangeEnd,
			"URLs":  s.URLCount,
		}))
	}
	return h.sendLong(ctx, bot, message.Chat.ID, strings.Join(lines, "\n"))
}

// HandleWebsite shows the current base URL with a button to change it.
func (h *MessageHandler) HandleWebsite(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	loc := h.localizer(message.From)
	var url string
	h.State.View(func(d *models.Snapshot) { url = d.BaseURL })
	kb := tu.InlineKeyboard(tu.InlineKeyboardRow(
		callbackButton(loc.Get(locales.MsgChangeWebsiteButton, nil), Callback{Kind: CallbackChangeWebsite})))
	return h.send(ctx, bot, message.Chat.ID, loc.Get(locales.MsgCurrentWebsite, map[string]interface{}{"URL": url}), kb)
}

// HandleSetting shows the settings menu.
func (h *MessageHandler) HandleSetting(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	loc := h.localizer(message.From)
	kb := tu.InlineKeyboard(
		tu.InlineKeyboardRow(callbackButton(loc.Get(locales.MsgAutoTimerButton, nil), Callback{Kind: CallbackTimerShow})),
		tu.InlineKeyboardRow(callbackButton(loc.Get(locales.MsgSubscriptionFunctionButton, nil), Callback{Kind: CallbackSubscriptionShow})),
		tu.InlineKeyboardRow(callbackButton(loc.Get(locales.MsgFreezeButton, nil), Callback{Kind: CallbackFreezeShow})),
	)
	return h.send(ctx, bot, message.Chat.ID, loc.Get(locales.MsgSettings, nil), kb)
}

// HandleUsers shows premium and total user counts.
func (h *MessageHandler) HandleUsers(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	loc := h.localizer(message.From)
	premium, total := h.Subscriptions.Counts()
	nonPremium := total - premium
	if nonPremium < 0 {
		nonPremium = 0
	}
	kb := tu.InlineKeyboard(tu.InlineKeyboardRow(
		callbackButton(loc.Get(locales.MsgPremiumUsersButton, nil), Callback{Kind: CallbackPremiumUsers})))
	return h.send(ctx, bot, message.Chat.ID, loc.Get(locales.MsgUserStats, map[string]interface{}{
		"Premium":    premium,
		"NonPremium": nonPremium,
		"Total":      total,
	}), kb)
}

// HandleUser shows one user's subscription and today's usage.
func (h *MessageHandler) HandleUser(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	loc := h.localizer(message.From)
	_, args := ParseCommand(message.Text)
	if len(args) != 1 {
		return h.send(ctx, bot, message.Chat.ID, loc.Get(locales.MsgUserUsage, nil), nil)
	}
	target, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return h.send(ctx, bot, message.Chat.ID, loc.Get(locales.MsgUserUsage, nil), nil)
	}

	today := quota.DayKey(h.Clock.Now(), h.Config.Location)
	plan := h.Subscriptions.EffectivePlan(target)

	subInfo := loc.Get(locales.MsgUserNoSubscription, nil)
	st, hasSub := h.Subscriptions.Get(target)
	if hasSub {
		status := loc.Get(locales.MsgUserExpired, nil)
		if st.Active {
			status = loc.Get(locales.MsgUserActive, nil)
		}
		subInfo = loc.Get(locales.MsgUserSubscription, map[string]interface{}{
			"Plan":      string(st.Plan),
			"Purchased": h.formatTime(st.PurchasedAt),
			"Expires":   h.formatTime(st.EffectiveExpiry),
			"Status":    status,
		})
	}

	usage := loc.Get(locales.MsgUserNoUsage, nil)
	if used := h.Quota.UsedToday(target, today); used > 0 || plan != models.PlanFull {
		limit := strconv.Itoa(quota.AllowedLinks(plan))
		if quota.AllowedLinks(plan) == quota.Unlimited {
			limit = "∞"
		}
		usage = loc.Get(locales.MsgUserLinksUsed, map[string]interface{}{"Used": used, "Limit": limit})
	}

	var kb *telego.InlineKeyboardMarkup
	if hasSub {
		kb = tu.InlineKeyboard(tu.InlineKeyboardRow(
			callbackButton(loc.Get(locales.MsgCancelSubscriptionButton, nil), Callback{Kind: CallbackCancelAsk, UserID: target})))
	}
	return h.send(ctx, bot, message.Chat.ID, loc.Get(locales.MsgUserDetails, map[string]interface{}{
		"Mention":      h.lookupMention(ctx, bot, target),
		"UserID":       target,
		"Subscription": subInfo,
		"Usage":        usage,
	}), kb)
}

// HandleExport sends subscriptions, links and usage as CSV documents.
func (h *MessageHandler) HandleExport(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	files, err := export.All(h.State.Snapshot())
	if err != nil {
		return h.sendError(ctx, bot, message.Chat.ID, message.From, err)
	}
	for _, f := range files {
		_, err := bot.SendDocument(ctx, &telego.SendDocumentParams{
			ChatID:   tu.ID(message.Chat.ID),
			Document: tu.File(tu.NameReader(bytes.NewReader(f.Data), f.Name)),
		})
		if err != nil {
			return h.sendError(ctx, bot, message.Chat.ID, message.From, err)
		}
	}
	h.recordUserActivity(ctx, message.From.ID, ActionExport, map[string]interface{}{"files": len(files)})
	return h.send(ctx, bot, message.Chat.ID, h.localizer(message.From).Get(locales.MsgExportDone, nil), nil)
}
