// Package auth issues and validates the signed session tokens that tie a
// browser to its run.
//
// Uses Ed25519 (EdDSA) for JWT signing. The key can be loaded from a PEM
// file or generated per process, in which case sessions do not survive a
// restart.
package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "auditfront"

// SessionClaims identifies one browser session.
type SessionClaims struct {
	jwt.RegisteredClaims
}

// SessionID returns the session identifier carried in the subject.
func (c *SessionClaims) SessionID() string {
	return c.Subject
}

// SessionManager handles session token creation and validation using Ed25519.
type SessionManager struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	ttl        time.Duration
	now        func() time.Time
}

// NewSessionManager creates a SessionManager from a PKCS#8 Ed25519 private
// key PEM file. If keyPath is empty, an ephemeral key pair is generated.
func NewSessionManager(keyPath string, ttl time.Duration) (*SessionManager, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("auth: session ttl must be positive")
	}
	if keyPath == "" {
		slog.Warn("auth: no session key configured, generating ephemeral key pair")
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("auth: generate key pair: %w", err)
		}
		return &SessionManager{privateKey: priv, publicKey: pub, ttl: ttl, now: time.Now}, nil
	}

	privPEM, err := os.ReadFile(keyPath) //nolint:gosec // path comes from validated config, not user input
	if err != nil {
		return nil, fmt.Errorf("auth: read private key: %w", err)
	}
	block, _ := pem.Decode(privPEM)
	if block == nil {
		return nil, fmt.Errorf("auth: decode private key PEM")
	}
	privKey, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("auth: parse private key: %w", err)
	}
	edPriv, ok := privKey.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("auth: private key is not Ed25519")
	}
	return &SessionManager{
		privateKey: edPriv,
		publicKey:  edPriv.Public().(ed25519.PublicKey),
		ttl:        ttl,
		now:        time.Now,
	}, nil
}

// TTL is the lifetime of an issued token.
func (m *SessionManager) TTL() time.Duration { return m.ttl }

// NewSession issues a token for a fresh session id.
func (m *SessionManager) NewSession() (token, sessionID string, expiresAt time.Time, err error) {
	sessionID = uuid.NewString()
	token, expiresAt, err = m.Issue(sessionID)
	return token, sessionID, expiresAt, err
}

// Issue creates a signed token for an existing session id, extending it.
func (m *SessionManager) Issue(sessionID string) (string, time.Time, error) {
	now := m.now().UTC()
	exp := now.Add(m.ttl)

	claims := SessionClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   sessionID,
		Issuer:    issuer,
		Audience:  jwt.ClaimStrings{issuer},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
		ID:        uuid.NewString(),
	}}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(m.privateKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign session token: %w", err)
	}
	return signed, exp, nil
}

// Validate parses and validates a session token, returning its claims.
func (m *SessionManager) Validate(tokenStr string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&SessionClaims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodEd25519); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return m.publicKey, nil
		},
		jwt.WithAudience(issuer),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("auth: validate session token: %w", err)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("auth: invalid session claims")
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return nil, fmt.Errorf("auth: invalid session id (expected UUID): %w", err)
	}
	return claims, nil
}
