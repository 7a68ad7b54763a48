package authtoken

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/yungbote/syllabridge-backend/internal/platform/ctxutil"
)

var ErrMissingSecret = errors.New("jwt secret is not set")

// Claims carries the owner in Subject and the optional institution.
type Claims struct {
	jwt.RegisteredClaims
	InstitutionID string `json:"institution_id,omitempty"`
}

// Issue signs an HS256 token for the requester. Used by the ops CLI and tests;
// production tokens come from the identity service sharing the secret.
func Issue(secret string, r ctxutil.Requester, ttl time.Duration) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", ErrMissingSecret
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   r.OwnerID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if r.InstitutionID != nil {
		claims.InstitutionID = r.InstitutionID.String()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// Parse verifies tokenString and returns the requester it names.
func Parse(secret, tokenString string) (*ctxutil.Requester, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrMissingSecret
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid or expired token")
	}
	ownerID, err := uuid.Parse(claims.Subject)
	if err != nil || ownerID == uuid.Nil {
		return nil, fmt.Errorf("invalid subject in token")
	}
	r := &ctxutil.Requester{OwnerID: ownerID}
	if claims.InstitutionID != "" {
		inst, err := uuid.Parse(claims.InstitutionID)
		if err != nil {
			return nil, fmt.Errorf("invalid institution in token: %w", err)
		}
		r.InstitutionID = &inst
	}
	return r, nil
}
