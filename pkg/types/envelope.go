package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ExpireLayout is the timestamp layout written into Envelope.Expire: UTC with
// millisecond precision, the same shape a browser's Date#toJSON produces.
const ExpireLayout = "2006-01-02T15:04:05.000Z07:00"

// ErrCorruptEnvelope reports a stored entry that cannot be decoded.
var ErrCorruptEnvelope = errors.New("corrupt envelope")

// Envelope is the wrapper persisted for every saved field.
//
//	{"value": <any JSON value>, "expire": "<ISO-8601>"}
//
// Expire is omitted when the field has no expiration.
type Envelope struct {
	Value  json.RawMessage `json:"value"`
	Expire string          `json:"expire,omitempty"`
}

// NewEnvelope marshals value and, when expireAt is non-zero, stamps the
// expiration timestamp.
func NewEnvelope(value any, expireAt time.Time) (Envelope, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal envelope value: %w", err)
	}
	env := Envelope{Value: raw}
	if !expireAt.IsZero() {
		env.Expire = expireAt.UTC().Format(ExpireLayout)
	}
	return env, nil
}

// Encode serialises the envelope to the string stored in a Store.
func (e Envelope) Encode() (string, error) {
	if len(e.Value) == 0 {
		e.Value = json.RawMessage("null")
	}
	b, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}
	return string(b), nil
}

// DecodeEnvelope parses a stored string. Any failure, including a top-level
// value that is not an object or an unparsable expiration timestamp, wraps
// ErrCorruptEnvelope.
func DecodeEnvelope(s string) (Envelope, error) {
	if !strings.HasPrefix(strings.TrimLeft(s, " \t\r\n"), "{") {
		return Envelope{}, fmt.Errorf("%w: not a JSON object", ErrCorruptEnvelope)
	}
	var env Envelope
	if err := json.Unmarshal([]byte(s), &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrCorruptEnvelope, err)
	}
	if len(env.Value) == 0 {
		env.Value = json.RawMessage("null")
	}
	if _, _, err := env.ExpiresAt(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// ExpiresAt returns the parsed expiration. ok is false when the envelope has
// no expiration.
func (e Envelope) ExpiresAt() (at time.Time, ok bool, err error) {
	if e.Expire == "" {
		return time.Time{}, false, nil
	}
	at, err = time.Parse(time.RFC3339Nano, e.Expire)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: expire %q: %v", ErrCorruptEnvelope, e.Expire, err)
	}
	return at, true, nil
}

// Live reports whether the envelope may be applied at now: it has no
// expiration, or the expiration is strictly after now.
func (e Envelope) Live(now time.Time) bool {
	at, ok, err := e.ExpiresAt()
	if err != nil {
		return false
	}
	return !ok || at.After(now)
}
