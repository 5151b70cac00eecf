package gateway

import (
	"crypto/rand"
	"io"
	"sync"
)

const (
	tokenPrefix  = "sk_"
	tokenLength  = 26
	base36Digits = "0123456789abcdefghijklmnopqrstuvwxyz"
)

type TokenReason string

const (
	TokenMissing TokenReason = "MISSING"
	TokenInvalid TokenReason = "INVALID"
)

type TokenResult struct {
	OK     bool
	Reason TokenReason
}

// TokenAuthenticator holds at most one valid single-use token. A successful
// Consume clears the slot, so every token authenticates exactly one request.
//
// Thread Safety: Safe for concurrent access; the slot is a global domain.
type TokenAuthenticator struct {
	mu              sync.Mutex
	valid           string
	lastInvalidated string
	random          io.Reader
}

func NewTokenAuthenticator() *TokenAuthenticator {
	return &TokenAuthenticator{random: rand.Reader}
}

// Issue generates a token, activates it and forgets both the previous unused
// token and the invalidated-token record.
func (t *TokenAuthenticator) Issue() string {
	token := t.generate()

	t.mu.Lock()
	t.valid = token
	t.lastInvalidated = ""
	t.mu.Unlock()

	return token
}

// Consume checks a presented token against the slot. On success the token
// moves to the invalidated record in the same critical section.
func (t *TokenAuthenticator) Consume(presented string) TokenResult {
	if presented == "" {
		return TokenResult{Reason: TokenMissing}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.valid == "" || presented != t.valid {
		return TokenResult{Reason: TokenInvalid}
	}
	t.lastInvalidated = t.valid
	t.valid = ""
	return TokenResult{OK: true}
}

func (t *TokenAuthenticator) Current() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.valid
}

func (t *TokenAuthenticator) LastInvalidated() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastInvalidated
}

// generate draws base36 digits by rejection sampling so every digit is
// equally likely.
func (t *TokenAuthenticator) generate() string {
	out := make([]byte, 0, len(tokenPrefix)+tokenLength)
	out = append(out, tokenPrefix...)

	var buf [64]byte
	for len(out) < cap(out) {
		if _, err := io.ReadFull(t.random, buf[:]); err != nil {
			panic("gateway: token entropy source failed: " + err.Error())
		}
		for _, b := range buf {
			if b >= 252 {
				continue
			}
			out = append(out, base36Digits[b%36])
			if len(out) == cap(out) {
				break
			}
		}
	}
	return string(out)
}
