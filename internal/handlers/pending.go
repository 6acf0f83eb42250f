package handlers

import (
	"context"
	"strconv"
	"strings"
	"time"

	"gatedrop-bot/internal/config"
	"gatedrop-bot/internal/locales"
	"gatedrop-bot/internal/models"
	"gatedrop-bot/internal/transport"
	telegoapi "gatedrop-bot/pkg/telegoapi"

	"github.com/mymmrac/telego"
)

type inputKind int

const (
	inputNone inputKind = iota
	inputBatchFirst
	inputBatchLast
	inputWebsite
	inputAutoDelete
)

// pendingInput is what the operator's next message answers.
type pendingInput struct {
	kind inputKind
	// firstPost is the start of the range while waiting for the last post.
	firstPost int
}

func (h *MessageHandler) setPending(chatID int64, p pendingInput) {
	h.pendingMu.Lock()
	defer h.pendingMu.Unlock()
	h.pending[chatID] = p
}

// takePending removes and returns the pending input for chatID.
func (h *MessageHandler) takePending(chatID int64) pendingInput {
	h.pendingMu.Lock()
	defer h.pendingMu.Unlock()
	p := h.pending[chatID]
	delete(h.pending, chatID)
	return p
}

// HandleOperatorInput consumes a message answering an operator prompt. It
// reports false when no prompt is pending.
func (h *MessageHandler) HandleOperatorInput(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) (bool, error) {
	if message.From == nil || !h.Auth.IsOperator(message.From.ID) {
		return false, nil
	}
	p := h.takePending(message.Chat.ID)
	switch p.kind {
	case inputBatchFirst, inputBatchLast:
		return true, h.batchStep(ctx, bot, message, p)
	case inputWebsite:
		return true, h.setWebsite(ctx, bot, message)
	case inputAutoDelete:
		return true, h.setAutoDelete(ctx, bot, message)
	default:
		return false, nil
	}
}

func (h *MessageHandler) batchStep(ctx context.Context, bot telegoapi.BotAPI, message telego.Message, p pendingInput) error {
	loc := h.localizer(message.From)
	postID, ok := transport.SourcePostID(&message, h.Config.DBChannelID)
	if !ok {
		return h.send(ctx, bot, message.Chat.ID, loc.Get(locales.MsgBatchInvalidPost, nil), nil)
	}
	if p.kind == inputBatchFirst {
		h.setPending(message.Chat.ID, pendingInput{kind: inputBatchLast, firstPost: postID})
		return h.send(ctx, bot, message.Chat.ID, loc.Get(locales.MsgBatchAskLast, nil), nil)
	}

	// A long range outlasts the update deadline; each call is bounded by the transport.
	ctx = context.WithoutCancel(ctx)
	var baseURL string
	h.State.View(func(d *models.Snapshot) { baseURL = d.BaseURL })
	link, err := h.Links.CreateBatch(ctx, p.firstPost, postID, func(ctx context.Context, id int) (models.ContentItem, error) {
		return h.Transport.FetchSource(ctx, id, baseURL)
	})
	if err != nil {
		h.Log.Error("failed to create batch", "first", p.firstPost, "last", postID, "error", err)
		return h.send(ctx, bot, message.Chat.ID, loc.Get(locales.MsgBatchFailed, nil), nil)
	}

	h.recordUserActivity(ctx, message.From.ID, ActionBatchCreated, map[string]interface{}{
		"token": link.Token,
		"start": link.RangeStart,
		"end":   link.RangeEnd,
		"items": len(link.Items),
	})
	return h.send(ctx, bot, message.Chat.ID, loc.Get(locales.MsgBatchCreated, map[string]interface{}{
		"Link":  h.deepLink(link.Token),
		"URLs":  len(link.URLs),
		"Items": len(link.Items),
	}), nil)
}

func (h *MessageHandler) setWebsite(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	loc := h.localizer(message.From)
	url := strings.TrimSpace(message.Text)
	if !config.ValidBaseURL(url) {
		return h.send(ctx, bot, message.Chat.ID, loc.Get(locales.MsgInvalidWebsite, nil), nil)
	}
	err := h.State.Update(ctx, func(d *models.Snapshot) error {
		d.BaseURL = url
		return nil
	})
	if err != nil {
		return h.sendError(ctx, bot, message.Chat.ID, message.From, err)
	}
	h.Log.Info("website updated", "url", url)
	h.recordUserActivity(ctx, message.From.ID, ActionWebsiteChanged, map[string]interface{}{"url": url})
	return h.send(ctx, bot, message.Chat.ID, loc.Get(locales.MsgWebsiteUpdated, map[string]interface{}{"URL": url}), nil)
}

func (h *MessageHandler) setAutoDelete(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	loc := h.localizer(message.From)
	seconds, err := strconv.Atoi(strings.TrimSpace(message.Text))
	if err != nil || seconds <= 0 {
		return h.send(ctx, bot, message.Chat.ID, loc.Get(locales.MsgInvalidAutoTimer, nil), nil)
	}
	err = h.State.Update(ctx, func(d *models.Snapshot) error {
		d.AutoDeleteAfter = time.Duration(seconds) * time.Second
		return nil
	})
	if err != nil {
		return h.sendError(ctx, bot, message.Chat.ID, message.From, err)
	}
	h.Log.Info("auto-delete timer updated", "seconds", seconds)
	h.recordUserActivity(ctx, message.From.ID, ActionTimerChanged, map[string]interface{}{"seconds": seconds})
	return h.send(ctx, bot, message.Chat.ID, loc.Get(locales.MsgAutoTimerUpdated, map[string]interface{}{"Seconds": seconds}), nil)
}
