package locales

import (
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed *.json
var localeFS embed.FS

// Bundle holds every embedded message file.
type Bundle struct {
	bundle          *i18n.Bundle
	defaultLanguage language.Tag
	log             *slog.Logger
}

// New loads the embedded message files. An unparsable defaultLangCode falls
// back to English.
func New(defaultLangCode string, log *slog.Logger) (*Bundle, error) {
	defaultLanguage, err := language.Parse(defaultLangCode)
	if err != nil {
		log.Warn("failed to parse default language code, falling back to English", "code", defaultLangCode, "error", err)
		defaultLanguage = language.English
	}

	bundle := i18n.NewBundle(defaultLanguage)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	files, err := localeFS.ReadDir(".")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded locales directory: %w", err)
	}

	loaded := 0
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}
		if _, err := bundle.LoadMessageFileFS(localeFS, file.Name()); err != nil {
			log.Warn("failed to load message file", "file", file.Name(), "error", err)
			continue
		}
		loaded++
	}
	if loaded == 0 {
		return nil, fmt.Errorf("no message files loaded")
	}
	log.Debug("i18n bundle initialized", "files", loaded, "default_language", defaultLanguage.String())
	return &Bundle{bundle: bundle, defaultLanguage: defaultLanguage, log: log}, nil
}

// DefaultLanguage returns the configured default language tag.
func (b *Bundle) DefaultLanguage() language.Tag {
	return b.defaultLanguage
}

// Localizer creates a localizer for the given language preferences, e.g. a
// Telegram user's language_code. The default language is always the last
// preference.
func (b *Bundle) Localizer(langPrefs ...string) *Localizer {
	langPrefs = append(langPrefs, b.defaultLanguage.String())
	return &Localizer{
		localizer: i18n.NewLocalizer(b.bundle, langPrefs...),
		english:   i18n.NewLocalizer(b.bundle, language.English.String()),
		log:       b.log,
	}
}

// Localizer renders messages for one set of language preferences.
type Localizer struct {
	localizer *i18n.Localizer
	english   *i18n.Localizer
	log       *slog.Logger
}

// Get renders message msgID with templateData. Missing translations fall back
// to English and finally to the ID itself.
func (l *Localizer) Get(msgID string, templateData map[string]interface{}) string {
	config := &i18n.LocalizeConfig{
		MessageID:    msgID,
		TemplateData: templateData,
	}

	msg, err := l.localizer.Localize(config)
	if err == nil {
		return msg
	}
	l.log.Error("failed to localize message, falling back to English", "msg_id", msgID, "error", err)

	if msg, err := l.english.Localize(config); err == nil {
		return msg
	}
	return msgID
}
