package models

const redacted = "******"

// Secret is a credential that must never end up in logs or output.
type Secret string

// String implements fmt.Stringer.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

// GoString keeps %#v from leaking the value.
func (s Secret) GoString() string {
	return s.String()
}

// MarshalJSON keeps structured loggers from leaking the value.
func (s Secret) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// Reveal returns the plaintext value for use on the wire.
func (s Secret) Reveal() string {
	return string(s)
}
