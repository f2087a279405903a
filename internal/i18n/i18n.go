// Package i18n provides internationalization support for player-facing messages
package i18n

import (
	"fmt"
	"strings"
)

const (
	// DefaultLanguage is the fallback language when no translation is available
	DefaultLanguage = "en"
	// RussianMessages is the Russian message profile
	RussianMessages = "ru"
)

// Localizer provides translation functionality
type Localizer struct {
	language string
	messages map[string]string
}

// NewLocalizer creates a new localizer for the specified language. Unknown languages
// use English.
func NewLocalizer(language string) *Localizer {
	language = strings.ToLower(strings.TrimSpace(language))
	if !IsSupported(language) {
		language = DefaultLanguage
	}
	return &Localizer{
		language: language,
		messages: getMessages(language),
	}
}

// Language returns the language code in use
func (l *Localizer) Language() string {
	return l.language
}

// T translates a message key, with optional parameters for formatting
func (l *Localizer) T(key string, args ...interface{}) string {
	if message, exists := l.messages[key]; exists {
		return format(message, args)
	}

	// Fallback to English if key not found in current language
	if l.language != DefaultLanguage {
		if fallbackMessage, exists := getMessages(DefaultLanguage)[key]; exists {
			return format(fallbackMessage, args)
		}
	}

	return key
}

// Error returns the message for a selection failure reason such as "pool_exhausted"
func (l *Localizer) Error(reason string) string {
	key := "error." + reason
	if message := l.T(key); message != key {
		return message
	}
	return l.T("error.internal")
}

func format(message string, args []interface{}) string {
	if len(args) > 0 {
		return fmt.Sprintf(message, args...)
	}
	return message
}

// GetSupportedLanguages returns list of supported language codes
func GetSupportedLanguages() []string {
	return []string{DefaultLanguage, RussianMessages}
}

// IsSupported reports whether a language code has its own message profile
func IsSupported(language string) bool {
	for _, l := range GetSupportedLanguages() {
		if l == language {
			return true
		}
	}
	return false
}

func getMessages(language string) map[string]string {
	switch language {
	case RussianMessages:
		return russianMessages
	default:
		return englishMessages
	}
}
