package access_test

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/weather-data-store/internal/access"
	"github.com/couchcryptid/weather-data-store/internal/domain"
	"github.com/couchcryptid/weather-data-store/internal/secure"
	"github.com/couchcryptid/weather-data-store/internal/store"
)

type mapLookup map[string]*domain.User

func (m mapLookup) GetUser(_ context.Context, userID string) (*domain.User, error) {
	if u, ok := m[userID]; ok {
		return u, nil
	}
	return nil, store.ErrNotFound
}

func testCipher(t *testing.T) *secure.Cipher {
	t.Helper()
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i * 7)
	}
	c, err := secure.NewCipher(base64.StdEncoding.EncodeToString(key))
	require.NoError(t, err)
	return c
}

func TestAuthorize(t *testing.T) {
	tests := []struct {
		userType   domain.UserType
		capability access.Capability
		allowed    bool
	}{
		{domain.UserAdmin, access.CapDelete, true},
		{domain.UserAdmin, access.CapConfigure, true},
		{domain.UserAdmin, access.CapMaintain, false},
		{domain.UserInstitution, access.CapWrite, true},
		{domain.UserInstitution, access.CapMaintain, true},
		{domain.UserInstitution, access.CapDelete, false},
		{domain.UserTechnician, access.CapMaintain, true},
		{domain.UserTechnician, access.CapWrite, false},
		{domain.UserPrivate, access.CapRead, true},
		{domain.UserPrivate, access.CapObserve, true},
		{domain.UserPrivate, access.CapWrite, false},
	}

	for _, tc := range tests {
		t.Run(string(tc.userType)+"_"+string(tc.capability), func(t *testing.T) {
			err := access.Authorize(tc.userType, tc.capability)
			if tc.allowed {
				assert.NoError(t, err)
				return
			}
			var denied *access.AccessDeniedError
			require.ErrorAs(t, err, &denied)
			assert.Equal(t, tc.userType, denied.UserType)
			assert.Equal(t, tc.capability, denied.Capability)
		})
	}
}

func TestAuthorize_UnknownType(t *testing.T) {
	assert.Error(t, access.Authorize("Robot", access.CapRead))
	assert.Nil(t, access.CapabilitiesFor("Robot"))
}

func TestGuard_SealUser(t *testing.T) {
	guard := access.NewGuard(testCipher(t), mapLookup{})
	user := &domain.User{UserID: "usr-p1", UserType: domain.UserPrivate, DisplayName: "A. Observer"}

	require.NoError(t, guard.SealUser(user, "Ada Lovelace", "ada@example.org", "hunter2"))

	assert.NotEmpty(t, user.CredentialDigest)
	assert.NotEqual(t, "hunter2", user.CredentialDigest)
	assert.NotEmpty(t, user.EncryptedName)
	assert.NotContains(t, user.EncryptedName, "Ada")
	assert.NotEmpty(t, user.EncryptedEmail)
	assert.NoError(t, user.Validate())
}

func TestGuard_ReadField(t *testing.T) {
	cipher := testCipher(t)
	subject := &domain.User{UserID: "usr-p1", UserType: domain.UserPrivate}
	admin := &domain.User{UserID: "usr-a1", UserType: domain.UserAdmin}
	other := &domain.User{UserID: "usr-p2", UserType: domain.UserPrivate}

	guard := access.NewGuard(cipher, mapLookup{
		"usr-p1": subject,
		"usr-a1": admin,
		"usr-p2": other,
	})
	require.NoError(t, guard.SealUser(subject, "Ada Lovelace", "ada@example.org", "hunter2"))

	ctx := context.Background()

	t.Run("subject reads own field", func(t *testing.T) {
		name, err := guard.ReadField(ctx, "usr-p1", "usr-p1", access.FieldName)
		require.NoError(t, err)
		assert.Equal(t, "Ada Lovelace", name)
	})

	t.Run("admin reads any field", func(t *testing.T) {
		email, err := guard.ReadField(ctx, "usr-a1", "usr-p1", access.FieldEmail)
		require.NoError(t, err)
		assert.Equal(t, "ada@example.org", email)
	})

	t.Run("other user is redacted", func(t *testing.T) {
		_, err := guard.ReadField(ctx, "usr-p2", "usr-p1", access.FieldName)
		var redacted *access.RedactedError
		require.ErrorAs(t, err, &redacted)
		assert.Equal(t, access.FieldName, redacted.Field)
	})

	t.Run("empty field decrypts to empty string", func(t *testing.T) {
		name, err := guard.ReadField(ctx, "usr-a1", "usr-a1", access.FieldName)
		require.NoError(t, err)
		assert.Empty(t, name)
	})

	t.Run("unknown field name", func(t *testing.T) {
		_, err := guard.ReadField(ctx, "usr-p1", "usr-p1", "telephone")
		assert.Error(t, err)
	})
}

func TestGuard_Authenticate(t *testing.T) {
	cipher := testCipher(t)
	user := &domain.User{UserID: "usr-p1", UserType: domain.UserPrivate}
	guard := access.NewGuard(cipher, mapLookup{"usr-p1": user})
	require.NoError(t, guard.SealUser(user, "", "", "hunter2"))

	ctx := context.Background()

	got, err := guard.Authenticate(ctx, "usr-p1", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "usr-p1", got.UserID)

	_, err = guard.Authenticate(ctx, "usr-p1", "wrong")
	assert.ErrorIs(t, err, access.ErrInvalidCredentials)

	// Unknown users fail with the same error as wrong passwords.
	_, err = guard.Authenticate(ctx, "usr-missing", "hunter2")
	assert.ErrorIs(t, err, access.ErrInvalidCredentials)
}
