// Package access enforces capability checks and field-level PII protection
// on top of the store. Capabilities are static per tenant class; PII reads
// are limited to the subject themselves and administrators.
package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/couchcryptid/weather-data-store/internal/domain"
	"github.com/couchcryptid/weather-data-store/internal/secure"
)

// Capability is one permitted class of operation.
type Capability string

const (
	CapRead      Capability = "read"
	CapWrite     Capability = "write"
	CapDelete    Capability = "delete"
	CapConfigure Capability = "configure"
	CapMaintain  Capability = "maintain"
	CapObserve   Capability = "observe"
)

// capabilities is the static grant table. There is no per-user override:
// what a tenant class can do is fixed at compile time.
var capabilities = map[domain.UserType][]Capability{
	domain.UserAdmin:       {CapRead, CapWrite, CapDelete, CapConfigure},
	domain.UserInstitution: {CapRead, CapWrite, CapMaintain},
	domain.UserTechnician:  {CapRead, CapMaintain},
	domain.UserPrivate:     {CapRead, CapObserve},
}

// CapabilitiesFor returns the grants for a tenant class, nil for unknown
// classes.
func CapabilitiesFor(t domain.UserType) []Capability {
	return capabilities[t]
}

// AccessDeniedError reports a capability the tenant class does not hold.
type AccessDeniedError struct {
	UserType   domain.UserType
	Capability Capability
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("access denied: %s lacks %s", e.UserType, e.Capability)
}

// RedactedError reports a PII field read by someone other than the subject
// or an administrator. The field value never leaves the store.
type RedactedError struct {
	Field string
}

func (e *RedactedError) Error() string {
	return fmt.Sprintf("field %s is redacted", e.Field)
}

// ErrInvalidCredentials is returned for both unknown users and wrong
// passwords, so authentication failures do not reveal which one happened.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Authorize returns nil if the tenant class holds the capability.
func Authorize(t domain.UserType, c Capability) error {
	for _, grant := range capabilities[t] {
		if grant == c {
			return nil
		}
	}
	return &AccessDeniedError{UserType: t, Capability: c}
}

// UserLookup fetches users for authentication and PII reads.
type UserLookup interface {
	GetUser(ctx context.Context, userID string) (*domain.User, error)
}

// Guard couples the field cipher with the user collection.
type Guard struct {
	cipher *secure.Cipher
	users  UserLookup
}

// NewGuard builds a Guard. The cipher must hold the same key that sealed the
// stored PII fields.
func NewGuard(cipher *secure.Cipher, users UserLookup) *Guard {
	return &Guard{cipher: cipher, users: users}
}

// PII field names accepted by ReadField.
const (
	FieldName  = "name"
	FieldEmail = "email"
)

// SealUser encrypts the name and email into the user's ciphertext fields and
// hashes the password into the credential digest. Called before the user
// document is inserted.
func (g *Guard) SealUser(user *domain.User, name, email, password string) error {
	digest, err := secure.HashPassword(password)
	if err != nil {
		return err
	}
	user.CredentialDigest = digest

	if name != "" {
		if user.EncryptedName, err = g.cipher.Encrypt(name); err != nil {
			return err
		}
	}
	if email != "" {
		if user.EncryptedEmail, err = g.cipher.Encrypt(email); err != nil {
			return err
		}
	}
	return nil
}

// ReadField decrypts a PII field of the subject user for the actor. Only the
// subject themselves and administrators may read; everyone else gets a
// RedactedError regardless of whether the field is populated.
func (g *Guard) ReadField(ctx context.Context, actorID, subjectID, field string) (string, error) {
	actor, err := g.users.GetUser(ctx, actorID)
	if err != nil {
		return "", err
	}
	if actor.UserID != subjectID && actor.UserType != domain.UserAdmin {
		return "", &RedactedError{Field: field}
	}

	subject := actor
	if actor.UserID != subjectID {
		if subject, err = g.users.GetUser(ctx, subjectID); err != nil {
			return "", err
		}
	}

	var ciphertext string
	switch field {
	case FieldName:
		ciphertext = subject.EncryptedName
	case FieldEmail:
		ciphertext = subject.EncryptedEmail
	default:
		return "", fmt.Errorf("unknown PII field %q", field)
	}
	if ciphertext == "" {
		return "", nil
	}
	return g.cipher.Decrypt(ciphertext)
}

// Authenticate verifies a user's password and returns the user document.
// Unknown ids and wrong passwords are indistinguishable to the caller.
func (g *Guard) Authenticate(ctx context.Context, userID, password string) (*domain.User, error) {
	user, err := g.users.GetUser(ctx, userID)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if !secure.VerifyPassword(password, user.CredentialDigest) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}
