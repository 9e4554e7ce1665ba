package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/teamsync/internal/auth"
)

const testSecret = "test-secret"

type fakeStore struct {
	accounts map[string]*auth.Account
	err      error
}

func (s *fakeStore) FindByID(_ context.Context, subject string) (*auth.Account, error) {
	if s.err != nil {
		return nil, s.err
	}
	acct, ok := s.accounts[subject]
	if !ok {
		return nil, auth.ErrAccountNotFound
	}
	return acct, nil
}

func (s *fakeStore) PasswordChangedAfter(account *auth.Account, issuedAt time.Time) bool {
	return !account.PasswordChangedAt.IsZero() && account.PasswordChangedAt.After(issuedAt)
}

func newGate(t *testing.T, accounts ...*auth.Account) (*auth.Gate, *auth.HMACVerifier, *fakeStore) {
	t.Helper()
	store := &fakeStore{accounts: make(map[string]*auth.Account)}
	for _, a := range accounts {
		store.accounts[string(a.ID)] = a
	}
	verifier := auth.NewHMACVerifier(testSecret)
	return auth.NewGate(verifier, store), verifier, store
}

func TestAuthenticateSuccess(t *testing.T) {
	gate, verifier, _ := newGate(t, &auth.Account{ID: "u1", Username: "alice"})

	token, err := verifier.Issue("u1", time.Hour)
	require.NoError(t, err)

	principal, err := gate.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, auth.Identity("u1"), principal.Identity)
	assert.Equal(t, "alice", principal.DisplayName)
	assert.Equal(t, "alice", principal.Account.Username)
}

func TestAuthenticateRejections(t *testing.T) {
	gate, verifier, _ := newGate(t,
		&auth.Account{ID: "u1", Username: "alice"},
		&auth.Account{ID: "u2", Username: "bob", PasswordChangedAt: time.Now().Add(time.Hour)},
	)

	valid := func(subject string, ttl time.Duration) string {
		token, err := verifier.Issue(subject, ttl)
		require.NoError(t, err)
		return token
	}
	foreign, err := auth.NewHMACVerifier("other-secret").Issue("u1", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		kind  auth.Kind
		cause error
	}{
		{name: "empty token", token: "", kind: auth.NoCredential},
		{name: "whitespace token", token: "   ", kind: auth.NoCredential},
		{name: "garbage", token: "not-a-jwt", kind: auth.InvalidCredential, cause: auth.ErrInvalidToken},
		{name: "wrong secret", token: foreign, kind: auth.InvalidCredential, cause: auth.ErrInvalidToken},
		{name: "expired", token: valid("u1", -time.Minute), kind: auth.InvalidCredential, cause: auth.ErrTokenExpired},
		{name: "unknown subject", token: valid("ghost", time.Hour), kind: auth.UnknownIdentity, cause: auth.ErrAccountNotFound},
		{name: "password changed", token: valid("u2", time.Hour), kind: auth.InvalidCredential, cause: auth.ErrPasswordChanged},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			principal, err := gate.Authenticate(context.Background(), tt.token)
			require.Error(t, err)
			assert.Nil(t, principal)
			assert.ErrorIs(t, err, auth.ErrAuthRejected)

			kind, ok := auth.KindOf(err)
			require.True(t, ok)
			assert.Equal(t, tt.kind, kind)
			if tt.cause != nil {
				assert.ErrorIs(t, err, tt.cause)
			}
		})
	}
}

func TestAuthenticateStoreFailureIsNotARejection(t *testing.T) {
	gate, verifier, store := newGate(t, &auth.Account{ID: "u1", Username: "alice"})
	store.err = errors.New("store unavailable")

	token, err := verifier.Issue("u1", time.Hour)
	require.NoError(t, err)

	_, err = gate.Authenticate(context.Background(), token)
	require.Error(t, err)
	assert.NotErrorIs(t, err, auth.ErrAuthRejected)
	_, ok := auth.KindOf(err)
	assert.False(t, ok)
}

func TestRejectErrorMessages(t *testing.T) {
	assert.Equal(t, "Authentication error: No token provided",
		(&auth.RejectError{Kind: auth.NoCredential}).Message())
	assert.Equal(t, "Authentication error: User not found",
		(&auth.RejectError{Kind: auth.UnknownIdentity}).Message())
	assert.Equal(t, "Authentication error: Invalid token",
		(&auth.RejectError{Kind: auth.InvalidCredential}).Message())
}
