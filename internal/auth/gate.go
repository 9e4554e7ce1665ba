// Package auth verifies the bearer credential a client presents when it opens
// a realtime connection and resolves it to an account.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Identity is the stable identifier of an account. One identity may own many
// live connections.
type Identity string

// Account is the identity store's view of a user.
type Account struct {
	ID                Identity
	Username          string
	Email             string
	PasswordChangedAt time.Time
}

// Claims is what a Verifier extracts from a valid token.
type Claims struct {
	Subject  string
	IssuedAt time.Time
}

// Verifier checks a token's signature and expiry.
type Verifier interface {
	Verify(token string) (Claims, error)
}

// IdentityStore resolves token subjects to accounts.
type IdentityStore interface {
	FindByID(ctx context.Context, subject string) (*Account, error)
	PasswordChangedAfter(account *Account, issuedAt time.Time) bool
}

// Principal is an authenticated caller.
type Principal struct {
	Identity    Identity
	DisplayName string
	Account     *Account
}

// Gate admits or rejects a presented credential.
type Gate struct {
	verifier Verifier
	store    IdentityStore
}

// NewGate returns a Gate backed by the given verifier and identity store.
func NewGate(verifier Verifier, store IdentityStore) *Gate {
	return &Gate{verifier: verifier, store: store}
}

// Authenticate validates token and resolves its account. Rejections are
// *RejectError values; any other error means the identity store failed.
func (g *Gate) Authenticate(ctx context.Context, token string) (*Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, Reject(NoCredential, nil)
	}

	claims, err := g.verifier.Verify(token)
	if err != nil {
		return nil, Reject(InvalidCredential, err)
	}

	account, err := g.store.FindByID(ctx, claims.Subject)
	if errors.Is(err, ErrAccountNotFound) || (err == nil && account == nil) {
		return nil, Reject(UnknownIdentity, fmt.Errorf("subject %q: %w", claims.Subject, ErrAccountNotFound))
	}
	if err != nil {
		return nil, fmt.Errorf("auth: resolve subject %q: %w", claims.Subject, err)
	}

	if g.store.PasswordChangedAfter(account, claims.IssuedAt) {
		return nil, Reject(InvalidCredential, ErrPasswordChanged)
	}

	return &Principal{
		Identity:    account.ID,
		DisplayName: account.Username,
		Account:     account,
	}, nil
}
