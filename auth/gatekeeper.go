// auth/gatekeeper.go
package auth

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
)

const DefaultCookieName = "dm.sid"

var (
	ErrAuthenticationRequired = errors.New("Authentication required")
	ErrInvalidSession         = errors.New("Invalid session")
)

// Identity is what admission attaches to a connection.
type Identity struct {
	SessionID     string
	Authenticated bool
}

// SessionVerifier turns the raw Cookie header into a session id.
type SessionVerifier interface {
	Parse(rawCookieHeader string) (string, error)
}

// CookieVerifier only checks that the named cookie is present and non-empty.
// It does not consult a session store.
type CookieVerifier struct {
	Name string
}

func NewCookieVerifier(name string) *CookieVerifier {
	if name == "" {
		name = DefaultCookieName
	}
	return &CookieVerifier{Name: name}
}

func (v *CookieVerifier) Parse(raw string) (string, error) {
	header := http.Header{"Cookie": []string{raw}}
	cookie, err := (&http.Request{Header: header}).Cookie(v.Name)
	if err != nil {
		return "", ErrInvalidSession
	}

	value, err := url.PathUnescape(cookie.Value)
	if err != nil {
		return "", ErrInvalidSession
	}
	// express-session 签名格式 s:<id>.<sig>
	value = strings.TrimPrefix(value, "s:")
	if value == "" {
		return "", ErrInvalidSession
	}
	return value, nil
}

// Gatekeeper makes the single accept/reject decision for a connection attempt.
type Gatekeeper struct {
	verifier SessionVerifier
}

func NewGatekeeper(verifier SessionVerifier) *Gatekeeper {
	return &Gatekeeper{verifier: verifier}
}

// Admit inspects the handshake request.
func (g *Gatekeeper) Admit(r *http.Request) (Identity, error) {
	raw := strings.Join(r.Header.Values("Cookie"), "; ")
	if strings.TrimSpace(raw) == "" {
		return Identity{}, ErrAuthenticationRequired
	}

	sid, err := g.verifier.Parse(raw)
	if err != nil {
		return Identity{}, err
	}
	return Identity{SessionID: sid, Authenticated: true}, nil
}
