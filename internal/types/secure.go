package types

import "strings"

// redactedPlaceholder replaces secret values in logs and serialization.
const redactedPlaceholder = "***REDACTED***"

var redactedJSON = []byte(`"***REDACTED***"`)

// SecretString holds a credential (the tracker API key) and refuses to
// print it. String and MarshalJSON both return a placeholder, so a config
// dump or a structured log line never carries the token.
//
// Unmask returns the raw value and is only called when building the
// Authorization header.
type SecretString string

// String returns a redacted placeholder instead of the raw value.
func (s SecretString) String() string {
	return redactedPlaceholder
}

// GoString keeps %#v from printing the raw value.
func (s SecretString) GoString() string {
	return redactedPlaceholder
}

// MarshalJSON returns the redacted placeholder as a JSON string.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return redactedJSON, nil
}

// Unmask returns the raw plaintext value of the secret.
func (s SecretString) Unmask() string {
	return string(s)
}

// IsBlank reports whether the secret is empty or whitespace only.
func (s SecretString) IsBlank() bool {
	return strings.TrimSpace(string(s)) == ""
}
