// Package oauthstate issues and checks the state parameter of the identity login.
package oauthstate

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingState = errors.New("missing login state")
	ErrMalformed    = errors.New("malformed login state")
	ErrStaleState   = errors.New("stale login state")
	ErrInvalidState = errors.New("invalid login state signature")
)

// Signer binds a state token to this process and a point in time.
type Signer struct {
	Secret  []byte
	MaxSkew time.Duration
	Now     func() time.Time
}

// NewSigner uses a random per-process secret.
func NewSigner(maxSkew time.Duration) (*Signer, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	return &Signer{Secret: secret, MaxSkew: maxSkew}, nil
}

// Issue returns "<unix>.<nonce>.<mac>".
func (s *Signer) Issue() (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	ts := strconv.FormatInt(s.now().Unix(), 10)
	n := hex.EncodeToString(nonce)
	return ts + "." + n + "." + computeSignature(s.Secret, ts, n), nil
}

func (s *Signer) Verify(state string) error {
	if state == "" {
		return ErrMissingState
	}
	parts := strings.Split(state, ".")
	if len(parts) != 3 {
		return ErrMalformed
	}
	ts, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return ErrMalformed
	}

	now := s.now()
	issued := time.Unix(ts, 0)
	if now.Sub(issued) > s.MaxSkew || issued.Sub(now) > s.MaxSkew {
		return ErrStaleState
	}

	expected := computeSignature(s.Secret, parts[0], parts[1])
	if !hmac.Equal([]byte(expected), []byte(parts[2])) {
		return ErrInvalidState
	}
	return nil
}

func (s *Signer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func computeSignature(secret []byte, timestamp, nonce string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte{'.'})
	mac.Write([]byte(nonce))
	return strings.ToLower(hex.EncodeToString(mac.Sum(nil)))
}
