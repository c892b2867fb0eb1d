// Package uauthtest runs a minimal identity service for tests.
package uauthtest

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"epicnft/internal/uauth"
)

const accessToken = "access-token"

type grant struct {
	challenge string
	nonce     string
}

// Server issues codes, tokens and a fixed profile.
type Server struct {
	*httptest.Server

	mu      sync.Mutex
	profile uauth.Profile
	grants  map[string]grant
	lookups int
	// BadNonce makes the issued id_token carry a different nonce.
	BadNonce bool
}

func NewServer(profile uauth.Profile) *Server {
	s := &Server{profile: profile, grants: make(map[string]grant)}
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/token", s.handleToken)
	mux.HandleFunc("/userinfo", s.handleUserInfo)
	s.Server = httptest.NewServer(mux)
	return s
}

// Config points a client at this server.
func (s *Server) Config(clientID string) uauth.Config {
	return uauth.Config{
		ClientID:    clientID,
		RedirectURI: "http://localhost:3000",
		Scope:       "openid wallet",
		AuthURL:     s.URL + "/oauth2/auth",
		TokenURL:    s.URL + "/oauth2/token",
		UserInfoURL: s.URL + "/userinfo",
	}
}

// Consent plays the user approving the login at authURL and returns the redirect parameters.
func (s *Server) Consent(authURL string) (code, state string, err error) {
	u, err := url.Parse(authURL)
	if err != nil {
		return "", "", err
	}
	q := u.Query()
	if q.Get("code_challenge_method") != "S256" || q.Get("code_challenge") == "" {
		return "", "", fmt.Errorf("login without pkce: %s", authURL)
	}
	code = uuid.NewString()
	s.mu.Lock()
	s.grants[code] = grant{challenge: q.Get("code_challenge"), nonce: q.Get("nonce")}
	s.mu.Unlock()
	return code, q.Get("state"), nil
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	g, ok := s.grants[r.PostForm.Get("code")]
	delete(s.grants, r.PostForm.Get("code"))
	s.mu.Unlock()
	if !ok {
		writeTokenError(w, "invalid_grant")
		return
	}
	sum := sha256.Sum256([]byte(r.PostForm.Get("code_verifier")))
	if base64.RawURLEncoding.EncodeToString(sum[:]) != g.challenge {
		writeTokenError(w, "invalid_grant")
		return
	}

	nonce := g.nonce
	if s.BadNonce {
		nonce = "other"
	}
	idToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   s.profile.Sub,
		"nonce": nonce,
	}).SignedString([]byte("test-signing-key"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"access_token": accessToken,
		"token_type":   "Bearer",
		"expires_in":   3600,
		"id_token":     idToken,
	})
}

func (s *Server) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+accessToken {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	s.mu.Lock()
	s.lookups++
	profile := s.profile
	s.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(profile)
}

// UserInfoLookups counts authorized userinfo requests.
func (s *Server) UserInfoLookups() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookups
}

func writeTokenError(w http.ResponseWriter, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}
