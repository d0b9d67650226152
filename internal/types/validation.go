package types

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// KeyValidationConfig contains the rules applied to cache keys and request paths.
type KeyValidationConfig struct {
	ReservedPatterns  []string
	MaxKeyLength      int
	AllowControlChars bool
	AllowWhitespace   bool
}

// DefaultKeyValidationConfig returns the rules used for cache keys.
func DefaultKeyValidationConfig() KeyValidationConfig {
	return KeyValidationConfig{
		MaxKeyLength:      1024,
		AllowControlChars: false,
		AllowWhitespace:   true,
	}
}

// PathValidationConfig returns the rules used for request paths.
func PathValidationConfig() KeyValidationConfig {
	return KeyValidationConfig{
		MaxKeyLength:      8192,
		AllowControlChars: false,
		AllowWhitespace:   false,
	}
}

type KeyValidator struct {
	config KeyValidationConfig
}

func NewKeyValidator(config KeyValidationConfig) *KeyValidator {
	return &KeyValidator{config: config}
}

// Validate checks s against the configured rules. Empty strings are accepted:
// an empty cache key already means NoCache and an empty path means the base URL.
func (v *KeyValidator) Validate(s string) error {
	if s == "" {
		return nil
	}

	if v.config.MaxKeyLength > 0 && len(s) > v.config.MaxKeyLength {
		return fmt.Errorf("%w: length %d exceeds maximum %d bytes",
			ErrInvalidKey, len(s), v.config.MaxKeyLength)
	}

	if !utf8.ValidString(s) {
		return fmt.Errorf("%w: invalid UTF-8", ErrInvalidKey)
	}

	for i, r := range s {
		if !v.config.AllowControlChars && (r < 32 || r == 127) {
			return fmt.Errorf("%w: control character at position %d", ErrInvalidKey, i)
		}

		if !v.config.AllowWhitespace && unicode.IsSpace(r) {
			return fmt.Errorf("%w: whitespace at position %d", ErrInvalidKey, i)
		}
	}

	for _, pattern := range v.config.ReservedPatterns {
		if strings.Contains(s, pattern) {
			return fmt.Errorf("%w: contains reserved pattern %q", ErrInvalidKey, pattern)
		}
	}

	return nil
}

// DefaultKeyValidator validates cache keys.
var DefaultKeyValidator = NewKeyValidator(DefaultKeyValidationConfig())

// DefaultPathValidator validates request paths.
var DefaultPathValidator = NewKeyValidator(PathValidationConfig())
