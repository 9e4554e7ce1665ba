package auth

import (
	"errors"
	"fmt"
)

// ErrAuthRejected matches every handshake rejection regardless of its kind.
var ErrAuthRejected = errors.New("authentication rejected")

var (
	// ErrAccountNotFound is returned by an IdentityStore when the subject
	// does not resolve to an account.
	ErrAccountNotFound = errors.New("account not found")
	// ErrInvalidToken covers malformed tokens and bad signatures.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned for well-formed tokens past their expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrPasswordChanged is returned when the account password changed after
	// the token was issued.
	ErrPasswordChanged = errors.New("password changed after token was issued")
)

// Kind classifies why a credential was rejected.
type Kind int

const (
	NoCredential Kind = iota + 1
	InvalidCredential
	UnknownIdentity
)

func (k Kind) String() string {
	switch k {
	case NoCredential:
		return "NoCredential"
	case InvalidCredential:
		return "InvalidCredential"
	case UnknownIdentity:
		return "UnknownIdentity"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// RejectError is returned by the Gate when a connection must not be admitted.
type RejectError struct {
	Kind Kind
	Err  error
}

// Reject builds a RejectError of the given kind wrapping cause.
func Reject(kind Kind, cause error) error {
	return &RejectError{Kind: kind, Err: cause}
}

func (e *RejectError) Error() string {
	if e.Err == nil {
		return "auth: " + e.Kind.String()
	}
	return fmt.Sprintf("auth: %s: %v", e.Kind, e.Err)
}

func (e *RejectError) Unwrap() error { return e.Err }

// Is reports true for ErrAuthRejected so callers can match any rejection.
func (e *RejectError) Is(target error) bool {
	return target == ErrAuthRejected
}

// Message is the client-visible text sent back on a failed handshake.
func (e *RejectError) Message() string {
	switch e.Kind {
	case NoCredential:
		return "Authentication error: No token provided"
	case UnknownIdentity:
		return "Authentication error: User not found"
	default:
		return "Authentication error: Invalid token"
	}
}

// KindOf extracts the rejection kind from err, if err is a rejection.
func KindOf(err error) (Kind, bool) {
	var rej *RejectError
	if errors.As(err, &rej) {
		return rej.Kind, true
	}
	return 0, false
}
