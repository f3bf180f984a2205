package types

// redacted replaces secret material wherever a SecretString is formatted or
// serialized.
const redacted = "[secret:redacted]"

var redactedJSONValue = []byte(`"[secret:redacted]"`)

// SecretString holds credential material that must never reach logs or API
// responses: the auth provider service key, Stripe secret and webhook signing
// keys, PayPal client secret, the Gemini API key, and the database URL.
// Formatting one (fmt, slog) or marshalling it to JSON yields a placeholder;
// the plaintext is only reachable through Unmask.
type SecretString string

// String satisfies fmt.Stringer with the redacted placeholder, so a
// SecretString dropped into a log line or error message stays masked.
func (s SecretString) String() string {
	return redacted
}

// MarshalJSON emits the placeholder. A config dump or response envelope that
// accidentally includes a secret field serializes harmlessly.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return redactedJSONValue, nil
}

// Unmask returns the plaintext. Call sites are the outbound credential
// surfaces only: Authorization headers, webhook signature checks, the
// database connection string.
func (s SecretString) Unmask() string {
	return string(s)
}
