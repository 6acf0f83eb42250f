package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gatedrop-bot/internal/content"
	"gatedrop-bot/internal/models"
	"gatedrop-bot/pkg/telegoapi"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// Button labels for rebased content links.
const (
	MiniAppButton = "Mini App Play"
	BrowserButton = "Browser Play"
)

// callTimeout bounds one Bot API call. Callers may run on detached contexts.
const callTimeout = 30 * time.Second

// ErrNothingToStore is returned when a source post has no storable content.
var ErrNothingToStore = errors.New("source post has no storable content")

// Telegram sends rendered items and fetches source posts through the Bot API.
type Telegram struct {
	bot         telegoapi.BotAPI
	dbChannelID int64
	// scratchChatID receives temporary forwards while capturing source posts.
	scratchChatID int64
	log           *slog.Logger
	sleep         func(ctx context.Context, d time.Duration) error
}

// NewTelegram creates a transport. Source posts are read from dbChannelID by
// forwarding them to scratchChatID.
func NewTelegram(bot telegoapi.BotAPI, dbChannelID, scratchChatID int64, log *slog.Logger) *Telegram {
	return &Telegram{bot: bot, dbChannelID: dbChannelID, scratchChatID: scratchChatID, log: log, sleep: sleepCtx}
}

// LinkKeyboard builds one web-app row and one URL row per link.
func LinkKeyboard(links []string) *telego.InlineKeyboardMarkup {
	if len(links) == 0 {
		return nil
	}
	rows := make([][]telego.InlineKeyboardButton, 0, 2*len(links))
	for _, link := range links {
		rows = append(rows,
			tu.InlineKeyboardRow(tu.InlineKeyboardButton(MiniAppButton).WithWebApp(&telego.WebAppInfo{URL: link})),
			tu.InlineKeyboardRow(tu.InlineKeyboardButton(BrowserButton).WithURL(link)),
		)
	}
	return tu.InlineKeyboard(rows...)
}

// Send delivers out to chatID as protected content and returns the message id.
func (t *Telegram) Send(ctx context.Context, chatID int64, out content.Outgoing) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	id := tu.ID(chatID)
	file := telego.InputFile{FileID: out.FileID}
	kb := LinkKeyboard(out.Links)

	var (
		msg *telego.Message
		err error
	)
	switch out.Kind {
	case models.KindText, models.KindUnsupported:
		params := &telego.SendMessageParams{ChatID: id, Text: out.Text, ParseMode: telego.ModeHTML, ProtectContent: true}
		if kb != nil {
			params.ReplyMarkup = kb
		}
		msg, err = t.bot.SendMessage(ctx, params)
	case models.KindPhoto:
		params := &telego.SendPhotoParams{ChatID: id, Photo: file, Caption: out.Text, ParseMode: telego.ModeHTML, ProtectContent: true}
		if kb != nil {
			params.ReplyMarkup = kb
		}
		msg, err = t.bot.SendPhoto(ctx, params)
	case models.KindVideo:
		params := &telego.SendVideoParams{ChatID: id, Video: file, Caption: out.Text, ParseMode: telego.ModeHTML, ProtectContent: true}
		if kb != nil {
			params.ReplyMarkup = kb
		}
		msg, err = t.bot.SendVideo(ctx, params)
	case models.KindDocument:
		params := &telego.SendDocumentParams{ChatID: id, Document: file, Caption: out.Text, ParseMode: telego.ModeHTML, ProtectContent: true}
		if kb != nil {
			params.ReplyMarkup = kb
		}
		msg, err = t.bot.SendDocument(ctx, params)
	case models.KindAudio:
		params := &telego.SendAudioParams{ChatID: id, Audio: file, Caption: out.Text, ParseMode: telego.ModeHTML, ProtectContent: true}
		if kb != nil {
			params.ReplyMarkup = kb
		}
		msg, err = t.bot.SendAudio(ctx, params)
	case models.KindVoice:
		params := &telego.SendVoiceParams{ChatID: id, Voice: file, Caption: out.Text, ParseMode: telego.ModeHTML, ProtectContent: true}
		if kb != nil {
			params.ReplyMarkup = kb
		}
		msg, err = t.bot.SendVoice(ctx, params)
	case models.KindSticker:
		params := &telego.SendStickerParams{ChatID: id, Sticker: file, ProtectContent: true}
		if kb != nil {
			params.ReplyMarkup = kb
		}
		msg, err = t.bot.SendSticker(ctx, params)
	default:
		return 0, fmt.Errorf("unknown content kind %q", out.Kind)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to send %s to chat %d: %w", out.Kind, chatID, err)
	}
	if msg == nil {
		return 0, fmt.Errorf("empty response sending %s to chat %d", out.Kind, chatID)
	}
	return msg.MessageID, nil
}

// FetchSource captures post messageID from the database channel. The post is
// forwarded to the scratch chat, classified with baseURL as its source base,
// and the forwarded copy is removed.
func (t *Telegram) FetchSource(ctx context.Context, messageID int, baseURL string) (models.ContentItem, error) {
	fwdCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	fwd, err := t.bot.ForwardMessage(fwdCtx, &telego.ForwardMessageParams{
		ChatID:     tu.ID(t.scratchChatID),
		FromChatID: tu.ID(t.dbChannelID),
		MessageID:  messageID,
	})
	if err != nil {
		return models.ContentItem{}, fmt.Errorf("failed to forward post %d: %w", messageID, err)
	}
	if fwd == nil {
		return models.ContentItem{}, fmt.Errorf("empty response forwarding post %d", messageID)
	}

	item, ok := content.Classify(fwd, baseURL)
	if delErr := t.DeleteMessage(ctx, t.scratchChatID, fwd.MessageID); delErr != nil {
		t.log.Warn("failed to remove captured copy", "post_id", messageID, "message_id", fwd.MessageID, "error", delErr)
	}
	if !ok {
		return models.ContentItem{}, fmt.Errorf("post %d: %w", messageID, ErrNothingToStore)
	}
	return item, nil
}

// DeleteMessage removes a message.
func (t *Telegram) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	return t.bot.DeleteMessage(ctx, &telego.DeleteMessageParams{ChatID: tu.ID(chatID), MessageID: messageID})
}

// SourcePostID returns the database channel post id msg was forwarded from.
// It reports false for messages forwarded from anywhere else.
func SourcePostID(msg *telego.Message, dbChannelID int64) (int, bool) {
	if msg == nil || msg.ForwardOrigin == nil {
		return 0, false
	}
	origin, ok := msg.ForwardOrigin.(*telego.MessageOriginChannel)
	if !ok || origin.Chat.ID != dbChannelID {
		return 0, false
	}
	return origin.MessageID, true
}

// ButtonKeyboard builds one URL button per row.
func ButtonKeyboard(buttons []content.LabeledURL) *telego.InlineKeyboardMarkup {
	if len(buttons) == 0 {
		return nil
	}
	rows := make([][]telego.InlineKeyboardButton, 0, len(buttons))
	for _, b := range buttons {
		rows = append(rows, tu.InlineKeyboardRow(tu.InlineKeyboardButton(b.Label).WithURL(b.URL)))
	}
	return tu.InlineKeyboard(rows...)
}

// SendAnnouncement delivers a broadcast post to chatID. Announcements are not
// protected and are never scheduled for deletion. Flood control errors are
// retried after the wait Telegram asks for.
func (t *Telegram) SendAnnouncement(ctx context.Context, chatID int64, a content.Announcement) error {
	err := t.withFloodRetry(ctx, fmt.Sprintf("announcement to %d", chatID), func() error {
		return t.sendAnnouncement(ctx, chatID, a)
	})
	if err != nil {
		return fmt.Errorf("failed to send announcement to chat %d: %w", chatID, err)
	}
	return nil
}

func (t *Telegram) sendAnnouncement(ctx context.Context, chatID int64, a content.Announcement) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	id := tu.ID(chatID)
	kb := ButtonKeyboard(a.Buttons)

	var err error
	switch a.Kind {
	case models.KindPhoto:
		params := &telego.SendPhotoParams{ChatID: id, Photo: telego.InputFile{FileID: a.FileID}, Caption: a.Text, ParseMode: telego.ModeHTML}
		if kb != nil {
			params.ReplyMarkup = kb
		}
		_, err = t.bot.SendPhoto(ctx, params)
	case models.KindVideo:
		params := &telego.SendVideoParams{ChatID: id, Video: telego.InputFile{FileID: a.FileID}, Caption: a.Text, ParseMode: telego.ModeHTML}
		if kb != nil {
			params.ReplyMarkup = kb
		}
		_, err = t.bot.SendVideo(ctx, params)
	default:
		params := &telego.SendMessageParams{ChatID: id, Text: a.Text, ParseMode: telego.ModeHTML}
		if kb != nil {
			params.ReplyMarkup = kb
		}
		_, err = t.bot.SendMessage(ctx, params)
	}
	return err
}
