package types

import (
	"encoding/json"
	"log/slog"
)

// SecretString holds an auth token. It redacts its value when formatted or
// marshaled so tokens never reach logs, error messages or config dumps.
type SecretString struct {
	value string
}

func NewSecretString(value string) SecretString {
	return SecretString{value: value}
}

func (s SecretString) Value() string {
	return s.value
}

func (s SecretString) String() string {
	if s.value == "" {
		return ""
	}
	return "[REDACTED]"
}

// LogValue keeps slog from printing the token.
func (s SecretString) LogValue() slog.Value {
	return slog.StringValue(s.String())
}

func (s SecretString) MarshalJSON() ([]byte, error) {
	if s.value == "" {
		return json.Marshal("")
	}
	return json.Marshal("[REDACTED]")
}

func (s *SecretString) UnmarshalJSON(data []byte) error {
	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	s.value = value
	return nil
}

func (s SecretString) IsEmpty() bool {
	return s.value == ""
}

// BearerHeader returns the Authorization header value, or "" when no token is set.
func (s SecretString) BearerHeader() string {
	if s.value == "" {
		return ""
	}
	return "Bearer " + s.value
}
