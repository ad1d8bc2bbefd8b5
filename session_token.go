package guest

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

// SessionClaims are the JWT claims minted for an API session.
type SessionClaims struct {
	jwt.RegisteredClaims
	UID   string `json:"uid"`
	Role  string `json:"role"`
	Email string `json:"email"`
}

// SessionTokenService mints and validates API session tokens for guests
// using clients that cannot hold a cookie session.
type SessionTokenService struct {
	signingKey      []byte
	tokenExpiration int
	issuer          string
	audience        jwt.ClaimStrings
	logger          Logger
	now             Clock
}

// NewSessionTokenService creates a new SessionTokenService. tokenExpiration
// is in hours.
func NewSessionTokenService(signingKey []byte, tokenExpiration int, issuer string, audience jwt.ClaimStrings) *SessionTokenService {
	return &SessionTokenService{
		signingKey:      signingKey,
		tokenExpiration: tokenExpiration,
		issuer:          issuer,
		audience:        audience,
		logger:          defLogger{},
		now:             time.Now,
	}
}

func (ts *SessionTokenService) WithLogger(l Logger) *SessionTokenService {
	if l != nil {
		ts.logger = l
	}
	return ts
}

func (ts *SessionTokenService) WithClock(clock Clock) *SessionTokenService {
	if clock != nil {
		ts.now = clock
	}
	return ts
}

// Generate mints a signed session token for the user.
func (ts *SessionTokenService) Generate(user *User) (string, error) {
	if user == nil {
		return "", errors.New("user must not be nil", errors.CategoryInternal)
	}

	now := ts.now()
	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   user.ID.String(),
			Audience:  ts.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(ts.tokenExpiration) * time.Hour)),
		},
		UID:   user.ID.String(),
		Role:  user.Role,
		Email: user.Email,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign session token")
	}

	return signed, nil
}

// Validate parses and validates a raw token string.
func (ts *SessionTokenService) Validate(raw string) (*SessionClaims, error) {
	parserOptions := make([]jwt.ParserOption, 0, 2)
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience...))
	}

	token, err := jwt.ParseWithClaims(raw, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("session token with unexpected signing method: %v", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, errors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).WithTextCode(ErrTokenMalformed.TextCode)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		ts.logger.Error("could not decode session token claims")
		return nil, ErrTokenMalformed
	}

	return claims, nil
}
