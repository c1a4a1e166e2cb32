// Package otp holds pending registration codes in memory. An entry lives
// from Issue until the first successful Verify or until its TTL runs out;
// the secret payload (the not-yet-committed password) is handed back exactly
// once and never touches durable storage.
package otp

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"
)

var (
	ErrNotFound = errors.New("no pending code for this email")
	ErrExpired  = errors.New("code expired")
	ErrMismatch = errors.New("code does not match")
)

const codeDigits = 6

type entry struct {
	code     string
	issuedAt time.Time
	payload  string
}

type Store struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]entry
}

// New builds a store with the given TTL. The clock defaults to time.Now and
// is overridable for tests via WithClock.
func New(ttl time.Duration) *Store {
	return &Store{
		ttl:     ttl,
		now:     time.Now,
		entries: map[string]entry{},
	}
}

// WithClock replaces the store's clock. Call before first use.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Issue generates a fresh 6-digit code for the email and parks the payload
// next to it, replacing any pending entry. Only the most recent registration
// attempt per email is honored.
func (s *Store) Issue(email, payload string) (string, error) {
	code, err := generateCode()
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.entries[email] = entry{code: code, issuedAt: s.now(), payload: payload}
	s.mu.Unlock()
	return code, nil
}

// Verify checks input against the pending code for email. On success the
// entry is removed and the parked payload returned; the same email cannot
// verify twice. Expired entries are removed on first observation, so a retry
// after expiry reports ErrNotFound rather than ErrExpired. A mismatch keeps
// the entry so the user can re-enter within the TTL.
func (s *Store) Verify(email, input string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[email]
	if !ok {
		return "", ErrNotFound
	}
	if s.now().Sub(e.issuedAt) > s.ttl {
		delete(s.entries, email)
		return "", ErrExpired
	}
	if e.code != input {
		return "", ErrMismatch
	}
	delete(s.entries, email)
	return e.payload, nil
}

// Sweep drops entries past their TTL and returns how many were removed.
// Correctness does not depend on it; it only bounds memory between the lazy
// expiry checks in Verify.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for email, e := range s.entries {
		if now.Sub(e.issuedAt) > s.ttl {
			delete(s.entries, email)
			removed++
		}
	}
	return removed
}

func generateCode() (string, error) {
	max := big.NewInt(10)
	buf := make([]byte, codeDigits)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		buf[i] = byte('0' + n.Int64())
	}
	return string(buf), nil
}
