// Package content converts source posts into stored items and stored items into
// outgoing messages.
package content

import (
	"regexp"
	"strings"

	"gatedrop-bot/internal/models"

	"github.com/mymmrac/telego"
)

// UnsupportedText replaces items whose kind cannot be replayed.
const UnsupportedText = "(Unsupported message type)"

var (
	urlPattern    = regexp.MustCompile(`https?://\S+`)
	buttonPattern = regexp.MustCompile(`(\S+?)=(https?://\S+)`)
)

// Outgoing is a stored item rendered for one delivery.
type Outgoing struct {
	Kind   models.ContentKind
	FileID string
	// Text is the message text or caption with every URL removed.
	Text string
	// Links are the item's URLs rebased onto the current base URL.
	Links []string
}

// LabeledURL is a button parsed from a label=url pair.
type LabeledURL struct {
	Label string
	URL   string
}

// Classify turns a source message into a ContentItem, capturing baseURL as the
// item's source base. It reports false for messages that carry nothing storable.
func Classify(msg *telego.Message, baseURL string) (models.ContentItem, bool) {
	if msg == nil {
		return models.ContentItem{}, false
	}

	var item models.ContentItem
	switch {
	case msg.Text != "":
		item = models.ContentItem{Kind: models.KindText, Text: msg.Text}
	case len(msg.Photo) > 0:
		item = models.ContentItem{Kind: models.KindPhoto, FileID: msg.Photo[len(msg.Photo)-1].FileID, Text: msg.Caption}
	case msg.Video != nil:
		item = models.ContentItem{Kind: models.KindVideo, FileID: msg.Video.FileID, Text: msg.Caption}
	case msg.Document != nil:
		item = models.ContentItem{Kind: models.KindDocument, FileID: msg.Document.FileID, Text: msg.Caption}
	case msg.Audio != nil:
		item = models.ContentItem{Kind: models.KindAudio, FileID: msg.Audio.FileID, Text: msg.Caption}
	case msg.Voice != nil:
		item = models.ContentItem{Kind: models.KindVoice, FileID: msg.Voice.FileID, Text: msg.Caption}
	case msg.Caption != "":
		item = models.ContentItem{Kind: models.KindText, Text: msg.Caption}
	case msg.Sticker != nil:
		item = models.ContentItem{Kind: models.KindSticker, FileID: msg.Sticker.FileID}
	default:
		return models.ContentItem{}, false
	}
	item.OriginalText = item.Text
	item.SourceBaseURL = baseURL
	return item, true
}

// ExtractURLs returns every http(s) URL in text in order of appearance.
func ExtractURLs(text string) []string {
	return urlPattern.FindAllString(text, -1)
}

// StripURLs removes every URL from text. A result that would be blank is a
// single space, since Telegram rejects empty text.
func StripURLs(text string) string {
	cleaned := strings.TrimSpace(urlPattern.ReplaceAllString(text, ""))
	if cleaned == "" {
		return " "
	}
	return cleaned
}

// RebasedLinks finds URLs in original that start with oldBase and returns them
// with oldBase replaced by newBase. The path suffix is kept as is.
func RebasedLinks(original, oldBase, newBase string) []string {
	oldBase = strings.TrimRight(oldBase, "/")
	newBase = strings.TrimRight(newBase, "/")
	if oldBase == "" || original == "" {
		return nil
	}

	pattern := regexp.MustCompile(regexp.QuoteMeta(oldBase) + `/\S*`)
	var links []string
	for _, match := range pattern.FindAllString(original, -1) {
		links = append(links, newBase+match[len(oldBase):])
	}
	return links
}

// Prepare renders a stored item against the currently configured base URL.
func Prepare(item models.ContentItem, currentBase string) Outgoing {
	out := Outgoing{
		Kind:   item.Kind,
		FileID: item.FileID,
		Links:  RebasedLinks(item.OriginalText, item.SourceBaseURL, currentBase),
	}
	switch item.Kind {
	case models.KindSticker:
	case models.KindText, models.KindPhoto, models.KindVideo, models.KindDocument, models.KindAudio, models.KindVoice:
		out.Text = StripURLs(item.Text)
	default:
		out.Kind = models.KindUnsupported
		out.Text = UnsupportedText
		out.Links = nil
	}
	return out
}

// CustomButtons extracts label=url pairs from text. It returns the text with
// the pairs removed and the parsed buttons in order.
func CustomButtons(text string) (string, []LabeledURL) {
	var buttons []LabeledURL
	for _, m := range buttonPattern.FindAllStringSubmatch(text, -1) {
		buttons = append(buttons, LabeledURL{Label: m[1], URL: m[2]})
	}
	cleaned := strings.TrimSpace(buttonPattern.ReplaceAllString(text, ""))
	if cleaned == "" {
		cleaned = " "
	}
	return cleaned, buttons
}

// Announcement is a broadcast post ready to fan out.
type Announcement struct {
	// Kind is KindText, KindPhoto or KindVideo.
	Kind    models.ContentKind
	FileID  string
	Text    string
	Buttons []LabeledURL
}

// ParseAnnouncement reads a broadcast channel post. Captions of media other
// than photos and videos are sent as plain text. Posts without text or caption
// are not broadcast.
func ParseAnnouncement(msg *telego.Message) (Announcement, bool) {
	if msg == nil {
		return Announcement{}, false
	}
	var a Announcement
	switch {
	case msg.Text != "":
		a = Announcement{Kind: models.KindText, Text: msg.Text}
	case msg.Caption == "":
		return Announcement{}, false
	case len(msg.Photo) > 0:
		a = Announcement{Kind: models.KindPhoto, FileID: msg.Photo[len(msg.Photo)-1].FileID, Text: msg.Caption}
	case msg.Video != nil:
		a = Announcement{Kind: models.KindVideo, FileID: msg.Video.FileID, Text: msg.Caption}
	default:
		a = Announcement{Kind: models.KindText, Text: msg.Caption}
	}
	a.Text, a.Buttons = CustomButtons(a.Text)
	return a, true
}
