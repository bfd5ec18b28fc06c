// Package localization renders user-facing error messages from a YAML catalog,
// choosing the locale by Accept-Language negotiation.
package localization

import (
	"edurecovery/internal/port/outbound"
	_ "embed"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed messages.yaml
var defaultMessages []byte

// Catalog holds messages for a fixed set of locales.
type Catalog struct {
	defaultLocale string
	locales       []string
	messages      map[string]map[string]string
	matcher       language.Matcher
}

// DefaultCatalog loads the built-in es-CL and en messages.
func DefaultCatalog(defaultLocale string) (*Catalog, error) {
	return LoadCatalog(defaultMessages, defaultLocale)
}

// LoadCatalog parses a locale -> key -> message YAML document. defaultLocale must
// be one of the document's locales; it answers when negotiation finds no match.
func LoadCatalog(data []byte, defaultLocale string) (*Catalog, error) {
	var messages map[string]map[string]string
	if err := yaml.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("failed to parse message catalog: %w", err)
	}
	if len(messages) == 0 {
		return nil, errors.New("message catalog is empty")
	}
	if _, ok := messages[defaultLocale]; !ok {
		return nil, fmt.Errorf("default locale %q is not in the message catalog", defaultLocale)
	}

	locales := []string{defaultLocale}
	others := make([]string, 0, len(messages)-1)
	for locale := range messages {
		if locale != defaultLocale {
			others = append(others, locale)
		}
	}
	sort.Strings(others)
	locales = append(locales, others...)

	tags := make([]language.Tag, 0, len(locales))
	for _, locale := range locales {
		tag, err := language.Parse(locale)
		if err != nil {
			return nil, fmt.Errorf("invalid locale %q in message catalog: %w", locale, err)
		}
		tags = append(tags, tag)
	}

	return &Catalog{
		defaultLocale: defaultLocale,
		locales:       locales,
		messages:      messages,
		matcher:       language.NewMatcher(tags),
	}, nil
}

// Locales returns the catalog locales, default first.
func (c *Catalog) Locales() []string {
	return append([]string(nil), c.locales...)
}

// Match returns the catalog locale best serving an Accept-Language header value.
func (c *Catalog) Match(acceptLanguage string) string {
	if acceptLanguage == "" {
		return c.defaultLocale
	}
	_, index := language.MatchStrings(c.matcher, acceptLanguage)
	if index < 0 || index >= len(c.locales) {
		return c.defaultLocale
	}
	return c.locales[index]
}

// Translator returns a translator for the locale negotiated from acceptLanguage.
func (c *Catalog) Translator(acceptLanguage string) *Translator {
	return &Translator{catalog: c, locale: c.Match(acceptLanguage)}
}

// Translator renders messages in one locale, falling back to the catalog default.
type Translator struct {
	catalog *Catalog
	locale  string
}

var _ outbound.MessageTranslator = (*Translator)(nil)

// Translate returns the message for key, or fallback when no locale knows it.
func (t *Translator) Translate(key, fallback string) string {
	if msg, ok := t.catalog.messages[t.locale][key]; ok && msg != "" {
		return msg
	}
	if msg, ok := t.catalog.messages[t.catalog.defaultLocale][key]; ok && msg != "" {
		return msg
	}
	return fallback
}

// Locale returns the negotiated locale.
func (t *Translator) Locale() string {
	return t.locale
}
