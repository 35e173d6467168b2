// Package auth implements the authentication handshake's external
// collaborator contract (C6 in the design): verifying a one-time password
// for a username and returning the bound UserID.
package auth

import (
	"fmt"
	"sync"
	"time"
)

// UserID is the opaque, case-sensitive identity a session authenticates to.
type UserID string

// ErrorKind distinguishes the ways an authentication attempt can fail.
type ErrorKind int

const (
	// UsernameNotUTF8 means the username bytes were not valid UTF-8.
	UsernameNotUTF8 ErrorKind = iota
	// NoSuchUser means the username is not present in the registry.
	NoSuchUser
	// InvalidOneTimePassword means the username exists but the OTP did
	// not match the currently valid one.
	InvalidOneTimePassword
)

// Error reports why verification failed. Username is only meaningful for
// NoSuchUser.
type Error struct {
	Kind     ErrorKind
	Username string
}

func (e *Error) Error() string {
	switch e.Kind {
	case UsernameNotUTF8:
		return "auth: username is not valid UTF-8"
	case NoSuchUser:
		return fmt.Sprintf("auth: no such user %q", e.Username)
	case InvalidOneTimePassword:
		return "auth: invalid one-time password"
	default:
		return "auth: rejected"
	}
}

// OTPGenerator produces and single-uses one-time passwords for one user.
type OTPGenerator interface {
	// TryConsume reports whether candidate is the currently valid OTP,
	// and if so marks it used: the very next call with the same
	// candidate fails until the generator's validity window elapses.
	TryConsume(now time.Time, candidate uint32) bool
}

// Registry holds every user able to authenticate, each with an OTP policy.
// Safe for concurrent use; share it with Clone-like copies of the pointer.
type Registry struct {
	mu    sync.Mutex
	users map[UserID]OTPGenerator
}

// NewRegistry returns an empty Registry. Use Registry.Add or
// ParseUsersFile to populate it.
func NewRegistry() *Registry {
	return &Registry{users: make(map[UserID]OTPGenerator)}
}

// Add registers or replaces a user's OTP generator.
func (reg *Registry) Add(id UserID, gen OTPGenerator) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.users[id] = gen
}

// Verify checks username/otp against the registry, consuming the OTP on a
// match. now is the instant the verification attempt is made.
func (reg *Registry) Verify(now time.Time, username string, otp uint32) (UserID, error) {
	id := UserID(username)

	reg.mu.Lock()
	gen, found := reg.users[id]
	reg.mu.Unlock()

	if !found {
		return "", &Error{Kind: NoSuchUser, Username: username}
	}
	if !gen.TryConsume(now, otp) {
		return "", &Error{Kind: InvalidOneTimePassword}
	}
	return id, nil
}
