package core

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// tokenClaims is the signed payload of a confirmation token. Expiry and reuse are
// enforced against the stored token, not the embedded claims.
type tokenClaims struct {
	SubjectType SubjectType `json:"sbt"`
	ScopeID     int         `json:"scp"`
	ScopeRef    string      `json:"ref,omitempty"`
	jwt.RegisteredClaims
}

// TokenSigner signs and verifies confirmation tokens with HMAC-SHA256.
type TokenSigner struct {
	secret []byte
}

func NewTokenSigner(secret string) *TokenSigner {
	return &TokenSigner{secret: []byte(secret)}
}

// Sign returns the compact signed form of t.
func (s *TokenSigner) Sign(t *ConfirmationToken) (string, error) {
	claims := tokenClaims{
		SubjectType: t.SubjectType,
		ScopeID:     t.ScopeID,
		ScopeRef:    t.ScopeRef,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        t.ID,
			Subject:   strconv.Itoa(t.SubjectID),
			IssuedAt:  jwt.NewNumericDate(t.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(t.ExpiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign confirmation token: %w", err)
	}
	return signed, nil
}

// Parse verifies the signature of raw and returns its claims.
func (s *TokenSigner) Parse(raw string) (*tokenClaims, error) {
	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, &TokenInvalidError{Reason: err.Error()}
	}
	if claims.ID == "" {
		return nil, &TokenInvalidError{Reason: "missing token id"}
	}
	return claims, nil
}

// TokenService issues and validates single-use, 24-hour confirmation tokens.
type TokenService struct {
	store  TokenStore
	signer *TokenSigner
	clock  Clock
}

func NewTokenService(store TokenStore, signer *TokenSigner, clock Clock) *TokenService {
	return &TokenService{store: store, signer: signer, clock: clock}
}

// New builds and signs a token without persisting it. Callers that need the token
// stored atomically with another write (order approval) persist it themselves.
func (s *TokenService) New(subjectType SubjectType, subjectID, scopeID int, scopeRef string) (*ConfirmationToken, error) {
	return s.NewAt(s.clock.Now(), subjectType, subjectID, scopeID, scopeRef)
}

// NewAt is New with an explicit issue time, for callers that stamp the same
// instant on another record.
func (s *TokenService) NewAt(issuedAt time.Time, subjectType SubjectType, subjectID, scopeID int, scopeRef string) (*ConfirmationToken, error) {
	now := issuedAt.UTC()
	t := &ConfirmationToken{
		ID:          uuid.NewString(),
		SubjectType: subjectType,
		SubjectID:   subjectID,
		ScopeID:     scopeID,
		ScopeRef:    scopeRef,
		IssuedAt:    now,
		ExpiresAt:   now.Add(TokenTTL),
	}
	signed, err := s.signer.Sign(t)
	if err != nil {
		return nil, err
	}
	t.Token = signed
	return t, nil
}

// Issue builds, signs and persists a token.
func (s *TokenService) Issue(ctx context.Context, subjectType SubjectType, subjectID, scopeID int, scopeRef string) (*ConfirmationToken, error) {
	t, err := s.New(subjectType, subjectID, scopeID, scopeRef)
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveToken(ctx, t); err != nil {
		return nil, fmt.Errorf("save confirmation token: %w", err)
	}
	return t, nil
}

// Validate checks signature, subject type, expiry and prior use of raw.
// Expiry is checked before reuse: a token presented after ExpiresAt always
// reports TokenExpiredError.
func (s *TokenService) Validate(ctx context.Context, raw string, want SubjectType) (*ConfirmationToken, error) {
	if raw == "" {
		return nil, &TokenInvalidError{Reason: "token is required"}
	}
	claims, err := s.signer.Parse(raw)
	if err != nil {
		return nil, err
	}

	stored, err := s.store.GetToken(ctx, claims.ID)
	if err != nil {
		var nf *NotFoundError
		if errors.As(err, &nf) {
			return nil, &TokenInvalidError{Reason: "unknown token"}
		}
		return nil, fmt.Errorf("load confirmation token: %w", err)
	}
	if stored.SubjectType != claims.SubjectType || strconv.Itoa(stored.SubjectID) != claims.Subject ||
		stored.ScopeID != claims.ScopeID || stored.ScopeRef != claims.ScopeRef {
		return nil, &TokenInvalidError{Reason: "token does not match its record"}
	}
	if stored.SubjectType != want {
		return nil, &TokenScopeError{Reason: fmt.Sprintf("token was issued to a %s", stored.SubjectType)}
	}
	if stored.Expired(s.clock.Now()) {
		return nil, &TokenExpiredError{ExpiresAt: stored.ExpiresAt}
	}
	if stored.UsedAt != nil {
		return nil, &TokenReusedError{UsedAt: *stored.UsedAt}
	}
	stored.Token = raw
	return stored, nil
}
