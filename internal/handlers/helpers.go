package handlers

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"gatedrop-bot/internal/locales"
	telegoapi "gatedrop-bot/pkg/telegoapi"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// maxMessageLen is Telegram's limit on message text length.
const maxMessageLen = 4096

const displayTime = "2006-01-02 15:04"

// send delivers an HTML message with an optional keyboard.
func (h *MessageHandler) send(ctx context.Context, bot telegoapi.BotAPI, chatID int64, text string, kb *telego.InlineKeyboardMarkup) error {
	params := &telego.SendMessageParams{ChatID: tu.ID(chatID), Text: text, ParseMode: telego.ModeHTML}
	if kb != nil {
		params.ReplyMarkup = kb
	}
	if _, err := bot.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("failed to send message to chat %d: %w", chatID, err)
	}
	return nil
}

// sendLong splits text on line boundaries to stay within Telegram's limit.
func (h *MessageHandler) sendLong(ctx context.Context, bot telegoapi.BotAPI, chatID int64, text string) error {
	for _, part := range splitMessage(text, maxMessageLen) {
		if err := h.send(ctx, bot, chatID, part, nil); err != nil {
			return err
		}
	}
	return nil
}

// sendError logs err, tells the user something went wrong and returns err
// for the update loop to report.
func (h *MessageHandler) sendError(ctx context.Context, bot telegoapi.BotAPI, chatID int64, user *telego.User, err error) error {
	h.Log.Error("handler error", "chat_id", chatID, "error", err)
	msg := h.localizer(user).Get(locales.MsgErrorGeneral, nil)
	if sendErr := h.send(ctx, bot, chatID, msg, nil); sendErr != nil {
		h.Log.Error("failed to send error message", "chat_id", chatID, "error", sendErr)
	}
	return err
}

// edit replaces the text of the message a callback was attached to.
func (h *MessageHandler) edit(ctx context.Context, bot telegoapi.BotAPI, query telego.CallbackQuery, text string, kb *telego.InlineKeyboardMarkup) error {
	if query.Message == nil {
		return fmt.Errorf("callback %s has no message", query.ID)
	}
	chatID := query.Message.GetChat().ID
	_, err := bot.EditMessageText(ctx, &telego.EditMessageTextParams{
		ChatID:      tu.ID(chatID),
		MessageID:   query.Message.GetMessageID(),
		Text:        text,
		ParseMode:   telego.ModeHTML,
		ReplyMarkup: kb,
	})
	if err != nil {
		return fmt.Errorf("failed to edit message in chat %d: %w", chatID, err)
	}
	return nil
}

func (h *MessageHandler) localizer(user *telego.User) *locales.Localizer {
	if user != nil && user.LanguageCode != "" {
		return h.Locales.Localizer(user.LanguageCode)
	}
	return h.Locales.Localizer()
}

// recordUserActivity appends action to the activity log. Failures are logged only.
func (h *MessageHandler) recordUserActivity(ctx context.Context, userID int64, action string, details map[string]interface{}) {
	if h.Activity == nil {
		return
	}
	if err := h.Activity.LogUserAction(ctx, userID, action, details); err != nil {
		h.Log.Warn("failed to log user action", "user_id", userID, "action", action, "error", err)
	}
}

// deepLink is the t.me link that opens the bot with token as start parameter.
func (h *MessageHandler) deepLink(token string) string {
	return fmt.Sprintf("https://t.me/%s?start=%s", h.BotUsername, token)
}

func (h *MessageHandler) formatTime(t time.Time) string {
	return t.In(h.Config.Location).Format(displayTime)
}

// mention renders an HTML link to a user profile.
func mention(userID int64, name string) string {
	if name == "" {
		return strconv.FormatInt(userID, 10)
	}
	return fmt.Sprintf("<a href='tg://user?id=%d'>%s</a>", userID, html.EscapeString(name))
}

// lookupMention resolves a user's first name via the bot API, falling back to the id.
func (h *MessageHandler) lookupMention(ctx context.Context, bot telegoapi.BotAPI, userID int64) string {
	member, err := bot.GetChatMember(ctx, &telego.GetChatMemberParams{ChatID: tu.ID(userID), UserID: userID})
	if err != nil || member == nil {
		h.Log.Debug("error mentioning user", "user_id", userID, "error", err)
		return strconv.FormatInt(userID, 10)
	}
	return mention(userID, member.MemberUser().FirstName)
}

// urlKeyboard is a single URL button, or nil when url is not configured.
func urlKeyboard(label, url string) *telego.InlineKeyboardMarkup {
	if url == "" {
		return nil
	}
	return tu.InlineKeyboard(tu.InlineKeyboardRow(tu.InlineKeyboardButton(label).WithURL(url)))
}

func callbackButton(label string, cb Callback) telego.InlineKeyboardButton {
	return tu.InlineKeyboardButton(label).WithCallbackData(cb.Data())
}

// ParseCommand splits a command message into the command name, without the
// leading slash and bot username, and its arguments.
func ParseCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil
	}
	name, _, _ := strings.Cut(fields[0][1:], "@")
	return name, fields[1:]
}

// splitMessage breaks text into chunks of at most limit bytes, preferring line
// boundaries. A long line is cut on rune boundaries so every chunk stays valid UTF-8.
func splitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}
	var (
		parts []string
		cur   strings.Builder
	)
	for _, line := range strings.SplitAfter(text, "\n") {
		for len(line) > limit {
			if cur.Len() > 0 {
				parts = append(parts, cur.String())
				cur.Reset()
			}
			cut := runeCut(line, limit)
			parts = append(parts, line[:cut])
			line = line[cut:]
		}
		if cur.Len()+len(line) > limit {
			parts = append(parts, cur.String())
			cur.Reset()
		}
		cur.WriteString(line)
	}
	if cur.Len() > 0 {
		parts = append(parts, cur.String())
	}
	return parts
}

// runeCut returns the largest index not above limit that starts a rune.
func runeCut(s string, limit int) int {
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	if cut == 0 {
		// limit is smaller than the first rune; emit it whole.
		_, size := utf8.DecodeRuneInString(s)
		return size
	}
	return cut
}
