package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gatedrop-bot/internal/locales"
	"gatedrop-bot/internal/models"
	"gatedrop-bot/internal/subscriptions"
	telegoapi "gatedrop-bot/pkg/telegoapi"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// HandleCallbackQuery answers the query and runs the operator action it encodes.
// Queries from anyone but the operator are acknowledged and ignored.
func (h *MessageHandler) HandleCallbackQuery(ctx context.Context, bot telegoapi.BotAPI, query telego.CallbackQuery) error {
	if err := bot.AnswerCallbackQuery(ctx, &telego.AnswerCallbackQueryParams{CallbackQueryID: query.ID}); err != nil {
		h.Log.Warn("error answering callback query", "query_id", query.ID, "error", err)
	}
	if !h.Auth.IsOperator(query.From.ID) {
		h.Log.Warn("callback from non-operator ignored", "user_id", query.From.ID, "data", query.Data)
		return nil
	}

	cb, err := ParseCallback(query.Data)
	if err != nil {
		h.Log.Warn("callback query not handled", "query_id", query.ID, "error", err)
		return nil
	}
	loc := h.localizer(&query.From)
	chatID := query.From.ID

	switch cb.Kind {
	case CallbackCancelAsk:
		kb := tu.InlineKeyboard(tu.InlineKeyboardRow(
			callbackButton(loc.Get(locales.MsgYesButton, nil), Callback{Kind: CallbackCancelConfirm, UserID: cb.UserID}),
			callbackButton(loc.Get(locales.MsgNoButton, nil), Callback{Kind: CallbackCancelAbort, UserID: cb.UserID}),
		))
		return h.send(ctx, bot, chatID, loc.Get(locales.MsgCancelConfirm, map[string]interface{}{"UserID": cb.UserID}), kb)

	case CallbackCancelConfirm:
		err := h.Subscriptions.Cancel(ctx, cb.UserID)
		if errors.Is(err, subscriptions.ErrNotFound) {
			return h.edit(ctx, bot, query, loc.Get(locales.MsgCancelNoSubscription, nil), nil)
		}
		if err != nil {
			return fmt.Errorf("cancel subscription of %d: %w", cb.UserID, err)
		}
		h.recordUserActivity(ctx, cb.UserID, ActionCancel, map[string]interface{}{"by": query.From.ID})
		return h.edit(ctx, bot, query, loc.Get(locales.MsgCancelDone, map[string]interface{}{"UserID": cb.UserID}), nil)

	case CallbackCancelAbort:
		return h.edit(ctx, bot, query, loc.Get(locales.MsgCancelAborted, nil), nil)

	case CallbackChangeWebsite:
		h.setPending(chatID, pendingInput{kind: inputWebsite})
		return h.send(ctx, bot, chatID, loc.Get(locales.MsgAskWebsite, nil), nil)

	case CallbackTimerShow:
		var seconds int
		h.State.View(func(d *models.Snapshot) { seconds = int(d.AutoDeleteAfter.Seconds()) })
		kb := tu.InlineKeyboard(tu.InlineKeyboardRow(
			callbackButton(loc.Get(locales.MsgChangeAutoTimerButton, nil), Callback{Kind: CallbackTimerChange})))
		return h.edit(ctx, bot, query, loc.Get(locales.MsgAutoTimerCurrent, map[string]interface{}{"Seconds": seconds}), kb)

	case CallbackTimerChange:
		h.setPending(chatID, pendingInput{kind: inputAutoDelete})
		return h.send(ctx, bot, chatID, loc.Get(locales.MsgAskAutoTimer, nil), nil)

	case CallbackSubscriptionShow:
		paused, _ := h.Subscriptions.Paused()
		kb := tu.InlineKeyboard(tu.InlineKeyboardRow(
			callbackButton(loc.Get(locales.MsgToggleButton, nil), Callback{Kind: CallbackSubscriptionToggle})))
		return h.edit(ctx, bot, query, loc.Get(locales.MsgSubscriptionFunction, map[string]interface{}{
			"Status": countdownStatus(loc, paused),
		}), kb)

	case CallbackSubscriptionToggle:
		paused, err := h.Subscriptions.Toggle(ctx)
		if err != nil {
			return fmt.Errorf("toggle subscription countdown: %w", err)
		}
		return h.edit(ctx, bot, query, loc.Get(locales.MsgSubscriptionToggled, map[string]interface{}{
			"Status": countdownStatus(loc, paused),
		}), nil)

	case CallbackFreezeShow:
		st := h.Delivery.TodayStats()
		kb := tu.InlineKeyboard(tu.InlineKeyboardRow(
			callbackButton(loc.Get(locales.MsgFreezeDeleteButton, nil), Callback{Kind: CallbackFreezeDelete})))
		return h.edit(ctx, bot, query, loc.Get(locales.MsgFreezeStats, map[string]interface{}{
			"Day":         st.Day,
			"Redemptions": st.Redemptions,
			"Users":       st.ActiveUsers,
			"Pending":     st.PendingDeletions,
		}), kb)

	case CallbackFreezeDelete:
		executed, failed, err := h.Deletions.ForceExecuteAll(ctx)
		if err != nil {
			h.Log.Error("failed to persist forced deletions", "error", err)
		}
		h.recordUserActivity(ctx, query.From.ID, ActionForceDelete, map[string]interface{}{
			"deleted": executed,
			"failed":  failed,
		})
		return h.edit(ctx, bot, query, loc.Get(locales.MsgForceDeleteDone, map[string]interface{}{
			"Deleted": executed,
			"Failed":  failed,
		}), nil)

	case CallbackPremiumUsers:
		active := h.Subscriptions.ActiveList()
		if len(active) == 0 {
			return h.send(ctx, bot, chatID, loc.Get(locales.MsgNoPremiumUsers, nil), nil)
		}
		lines := make([]string, 0, len(active))
		for i, st := range active {
			days, hours := remaining(st.Remaining)
			lines = append(lines, loc.Get(locales.MsgPremiumUserLine, map[string]interface{}{
				"Index":     i + 1,
				"Mention":   h.lookupMention(ctx, bot, st.UserID),
				"Purchased": h.formatTime(st.PurchasedAt),
				"Expires":   h.formatTime(st.EffectiveExpiry),
				"Days":      days,
				"Hours":     hours,
			}))
		}
		return h.sendLong(ctx, bot, chatID, strings.Join(lines, "\n"))
	}
	return nil
}

// countdownStatus renders the subscription function switch: ON while the
// countdown runs.
func countdownStatus(loc *locales.Localizer, paused bool) string {
	if paused {
		return loc.Get(locales.MsgStatusOff, nil)
	}
	return loc.Get(locales.MsgStatusOn, nil)
}
