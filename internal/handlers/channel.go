package handlers

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"gatedrop-bot/internal/content"
	"gatedrop-bot/internal/locales"
	"gatedrop-bot/internal/models"
	"gatedrop-bot/internal/quota"
	"gatedrop-bot/internal/subscriptions"
	telegoapi "gatedrop-bot/pkg/telegoapi"

	"github.com/mymmrac/telego"
)

// HandleChannelPost routes posts from the subscription and broadcast channels.
// Posts from any other channel are ignored.
func (h *MessageHandler) HandleChannelPost(ctx context.Context, bot telegoapi.BotAPI, post telego.Message) error {
	cfg := h.Config
	switch chatID := post.Chat.ID; {
	case chatID == 0:
		return nil
	case chatID == cfg.SubsChannelID:
		return h.activate(ctx, bot, post, models.PlanFull)
	case chatID == cfg.LimitedSubsChannelID:
		return h.activate(ctx, bot, post, models.PlanLimited)
	case chatID == cfg.UpgradeChannelID:
		return h.upgrade(ctx, bot, post)
	case chatID == cfg.BroadcastChannelID:
		return h.broadcast(ctx, bot, post)
	}
	return nil
}

// postedUserID reads the user id a subscription channel post consists of.
func (h *MessageHandler) postedUserID(post telego.Message) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(post.Text), 10, 64)
	if err != nil || id <= 0 {
		h.Log.Warn("ignoring subscription post without a user id", "chat_id", post.Chat.ID, "message_id", post.MessageID)
		return 0, false
	}
	return id, true
}

func (h *MessageHandler) activate(ctx context.Context, bot telegoapi.BotAPI, post telego.Message, plan models.Plan) error {
	userID, ok := h.postedUserID(post)
	if !ok {
		return nil
	}
	sub, err := h.Subscriptions.Activate(ctx, userID, plan)
	if err != nil {
		return err
	}
	h.recordUserActivity(ctx, userID, ActionSubscription, map[string]interface{}{"plan": string(plan)})

	msgID := locales.MsgFullActivated
	if plan == models.PlanLimited {
		msgID = locales.MsgLimitedActivated
	}
	text := h.Locales.Localizer().Get(msgID, map[string]interface{}{
		"Purchased": h.formatTime(sub.PurchasedAt),
		"Expires":   h.formatTime(sub.ExpiresAt),
		"Limit":     quota.AllowedLinks(models.PlanLimited),
	})
	if err := h.send(ctx, bot, userID, text, nil); err != nil {
		h.Log.Warn("failed to notify subscriber", "user_id", userID, "error", err)
	}
	return nil
}

func (h *MessageHandler) upgrade(ctx context.Context, bot telegoapi.BotAPI, post telego.Message) error {
	userID, ok := h.postedUserID(post)
	if !ok {
		return nil
	}
	_, err := h.Subscriptions.Upgrade(ctx, userID)
	if errors.Is(err, subscriptions.ErrUpgradeNoOp) || errors.Is(err, subscriptions.ErrNotFound) {
		h.Log.Info("upgrade ignored", "user_id", userID, "reason", err)
		return nil
	}
	if err != nil {
		return err
	}
	h.recordUserActivity(ctx, userID, ActionUpgrade, nil)
	if err := h.send(ctx, bot, userID, h.Locales.Localizer().Get(locales.MsgUpgraded, nil), nil); err != nil {
		h.Log.Warn("failed to notify upgraded subscriber", "user_id", userID, "error", err)
	}
	return nil
}

func (h *MessageHandler) broadcast(ctx context.Context, bot telegoapi.BotAPI, post telego.Message) error {
	a, ok := content.ParseAnnouncement(&post)
	if !ok {
		return nil
	}
	sum := h.Broadcaster.Send(ctx, a)
	text := h.Locales.Localizer().Get(locales.MsgBroadcastSummary, map[string]interface{}{
		"Sent":   sum.Sent,
		"Failed": sum.Failed,
	})
	return h.send(ctx, bot, h.Config.AdminID, text, nil)
}

// NotifyExpired sends the renewal message to every newly expired subscriber.
// Each expiry is notified at most once.
func (h *MessageHandler) NotifyExpired(ctx context.Context, bot telegoapi.BotAPI) error {
	expired, err := h.Subscriptions.SweepExpired(ctx)
	if err != nil {
		return err
	}
	loc := h.Locales.Localizer()
	kb := urlKeyboard(loc.Get(locales.MsgBuyButton, nil), h.Config.PayURL)
	for _, userID := range expired {
		if err := h.send(ctx, bot, userID, loc.Get(locales.MsgExpired, nil), kb); err != nil {
			h.Log.Error("failed to send expiry notification", "user_id", userID, "error", err)
		}
	}
	return nil
}

// RunExpiryNotifier calls NotifyExpired every interval until ctx is done.
func (h *MessageHandler) RunExpiryNotifier(ctx context.Context, bot telegoapi.BotAPI, interval time.Duration) {
	ticker := h.Clock.Ticker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.NotifyExpired(ctx, bot); err != nil {
				h.Log.Error("expiry sweep failed", "error", err)
			}
		}
	}
}
