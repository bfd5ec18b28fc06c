package outbound

// MessageTranslator resolves localized, user-safe messages.
type MessageTranslator interface {
	// Translate returns the message for key, or fallback when the key is unknown
	Translate(key, fallback string) string

	// Locale returns the BCP 47 tag messages are rendered in
	Locale() string
}
