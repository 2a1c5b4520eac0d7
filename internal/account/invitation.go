package account

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/askanna-io/askanna-core/internal/models"
)

// InvitationSigner issues and verifies the signed tokens embedded in
// invitation links. Tokens are HMAC-signed and carry the membership suuid,
// so a token can only accept the invitation it was issued for.
type InvitationSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewInvitationSigner wires a signer. ttl is the invitation validity window.
func NewInvitationSigner(secret []byte, ttl time.Duration) *InvitationSigner {
	return &InvitationSigner{secret: secret, ttl: ttl, now: time.Now}
}

type invitationClaims struct {
	MembershipSUUID string `json:"membership"`
	jwt.RegisteredClaims
}

// Sign issues a token for an invitation membership.
func (s *InvitationSigner) Sign(membership *models.Membership) (string, error) {
	now := s.now().UTC()
	claims := invitationClaims{
		MembershipSUUID: membership.SUUID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign invitation token: %w", err)
	}
	return token, nil
}

// Verify checks signature, expiry and that the token belongs to the given
// membership. A token with a broken signature is rejected outright, expiry
// notwithstanding.
func (s *InvitationSigner) Verify(token string, membership *models.Membership) error {
	var claims invitationClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil || !parsed.Valid {
		return errors.Join(ErrInvitationInvalid, err)
	}
	if claims.MembershipSUUID != membership.SUUID {
		return ErrInvitationInvalid
	}
	return nil
}
