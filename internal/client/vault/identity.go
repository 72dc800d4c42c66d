package vault

import (
	"log/slog"

	"filippo.io/age"
)

// Recipient is the public half of an identity in age's "age1..." encoding.
type Recipient string

// Identity is an opaque handle to an unlocked private identity.
type Identity struct {
	x *age.X25519Identity
}

func (i *Identity) Recipient() Recipient {
	if i == nil || i.x == nil {
		return ""
	}
	return Recipient(i.x.Recipient().String())
}

func (i *Identity) String() string { return "Identity(REDACTED)" }

func (i *Identity) GoString() string { return i.String() }

// LogValue keeps the identity out of structured logs.
func (i *Identity) LogValue() slog.Value { return slog.StringValue("REDACTED") }
