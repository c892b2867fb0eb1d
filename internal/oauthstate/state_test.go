package oauthstate

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSigner_AcceptsIssuedState(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := &Signer{
		Secret:  []byte("secret"),
		MaxSkew: time.Minute,
		Now: func() time.Time {
			return now
		},
	}

	state, err := s.Issue()
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := s.Verify(state); err != nil {
		t.Fatalf("expected valid state, got %v", err)
	}
}

func TestSigner_RejectsForgedState(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := &Signer{
		Secret:  []byte("secret"),
		MaxSkew: time.Minute,
		Now: func() time.Time {
			return now
		},
	}
	other := &Signer{Secret: []byte("other"), MaxSkew: time.Minute, Now: s.Now}

	state, _ := other.Issue()
	if err := s.Verify(state); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}

	parts := strings.Split(state, ".")
	if err := s.Verify(parts[0] + "." + parts[1]); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
	if err := s.Verify(""); !errors.Is(err, ErrMissingState) {
		t.Fatalf("expected ErrMissingState, got %v", err)
	}
}

func TestSigner_RejectsStaleState(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := &Signer{
		Secret:  []byte("secret"),
		MaxSkew: time.Minute,
		Now: func() time.Time {
			return now
		},
	}

	state, _ := s.Issue()
	now = now.Add(2 * time.Minute)

	if err := s.Verify(state); !errors.Is(err, ErrStaleState) {
		t.Fatalf("expected ErrStaleState, got %v", err)
	}
}
