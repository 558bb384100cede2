package signin

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// XJWTHeader is the response header carrying a minted JWT after a
// successful sign in.
const XJWTHeader = "X-Jwt"

// SignInClaims is the claim set minted alongside an opaque auth token. The
// JWT is informational for downstream services; the opaque token remains the
// credential of record.
type SignInClaims struct {
	jwt.RegisteredClaims
	Username string `json:"username,omitempty"`
}

// TokenMint issues HS256 signed JWTs for signed-in users.
type TokenMint struct {
	signingKey []byte
	issuer     string
	audience   jwt.ClaimStrings
	ttl        time.Duration
}

// NewTokenMint creates a TokenMint from config. Returns an error when the
// signing key is empty.
func NewTokenMint(cfg Config) (*TokenMint, error) {
	key := cfg.GetSigningKey()
	if key == "" {
		return nil, goerrors.New("signing key is required", goerrors.CategoryBadInput)
	}

	ttl := cfg.GetTokenExpiration()
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &TokenMint{
		signingKey: []byte(key),
		issuer:     cfg.GetIssuer(),
		audience:   jwt.ClaimStrings(cfg.GetAudience()),
		ttl:        ttl,
	}, nil
}

// Mint signs a JWT for the given username and token. The JWT id is the
// opaque token value so the two credentials can be correlated in logs.
func (m *TokenMint) Mint(username string, token *AuthToken) (string, time.Time, error) {
	if username == "" {
		return "", time.Time{}, goerrors.New("username is required", goerrors.CategoryBadInput)
	}

	now := time.Now()
	expiresAt := now.Add(m.ttl)

	claims := &SignInClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Audience:  m.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Username: username,
	}

	if token != nil {
		claims.ID = token.TokenValue
		if token.UserID != nil {
			claims.Subject = token.UserID.String()
		}
	}

	jot := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := jot.SignedString(m.signingKey)
	if err != nil {
		return "", time.Time{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign token")
	}

	return signed, expiresAt, nil
}

// Parse validates a minted JWT and returns its claims. Only HS256 signed
// tokens are accepted.
func (m *TokenMint) Parse(tokenString string) (*SignInClaims, error) {
	claims := &SignInClaims{}
	jot, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, goerrors.New("unexpected signing method", goerrors.CategoryAuth).
				WithTextCode("INVALID_SIGNING_METHOD")
		}
		return m.signingKey, nil
	})

	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryAuth, "invalid token").
			WithTextCode("INVALID_TOKEN")
	}

	if !jot.Valid {
		return nil, goerrors.New("invalid token", goerrors.CategoryAuth).
			WithTextCode("INVALID_TOKEN")
	}

	return claims, nil
}
