package driven

// ConfigStore is the persisted settings file behind quire's configuration.
// Keys are dotted paths such as "crawl.max_pages" or "llm.model".
// Typed getters return the zero value for a missing key or a value of the
// wrong type.
type ConfigStore interface {
	Get(key string) (any, bool)
	GetString(key string) string
	// GetInt accepts any integer width the decoder produced.
	GetInt(key string) int
	// GetFloat widens integer values.
	GetFloat(key string) float64
	GetBool(key string) bool
	GetStringSlice(key string) []string

	// Set writes through to storage.
	Set(key string, value any) error
	Save() error
	Load() error

	// Path is the backing file, ":memory:" for in-memory stores.
	Path() string
}
