package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/familyhub-backend/pkg/config"
	"github.com/angelmondragon/familyhub-backend/pkg/enums"
)

// Member is the authenticated caller behind a request.
type Member struct {
	UserID uuid.UUID
	Role   enums.MemberRole
}

func (m Member) IsAdmin() bool { return m.Role == enums.MemberRoleAdmin }

// claims puts the user id in "sub" and the role in a private claim.
type claims struct {
	Role enums.MemberRole `json:"role"`
	jwt.RegisteredClaims
}

var signingMethod = jwt.SigningMethodHS256

func checkConfig(cfg config.JWTConfig) error {
	switch {
	case cfg.Secret == "":
		return errors.New("jwt secret is required")
	case cfg.Issuer == "":
		return errors.New("jwt issuer is required")
	}
	return nil
}

// Issue signs an access token for m that expires cfg.ExpirationMinutes after now.
func Issue(cfg config.JWTConfig, now time.Time, m Member) (string, error) {
	if err := checkConfig(cfg); err != nil {
		return "", err
	}
	if cfg.ExpirationMinutes <= 0 {
		return "", errors.New("jwt expiration minutes must be positive")
	}
	if m.UserID == uuid.Nil {
		return "", errors.New("user id is required")
	}
	if !m.Role.IsValid() {
		return "", fmt.Errorf("invalid member role %q", m.Role)
	}

	token := jwt.NewWithClaims(signingMethod, claims{
		Role: m.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   m.UserID.String(),
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(cfg.ExpirationMinutes) * time.Minute)),
			ID:        uuid.NewString(),
		},
	})
	signed, err := token.SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, issuer and expiry and returns the member the
// token was issued to.
func Verify(cfg config.JWTConfig, raw string) (Member, error) {
	if err := checkConfig(cfg); err != nil {
		return Member{}, err
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
	)
	var c claims
	if _, err := parser.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	}); err != nil {
		return Member{}, err
	}

	userID, err := uuid.Parse(c.Subject)
	if err != nil || userID == uuid.Nil {
		return Member{}, errors.New("token subject is not a user id")
	}
	if !c.Role.IsValid() {
		return Member{}, fmt.Errorf("token carries unknown role %q", c.Role)
	}
	return Member{UserID: userID, Role: c.Role}, nil
}
