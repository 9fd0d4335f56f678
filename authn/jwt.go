package authn

import (
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the access token's claim set, exactly as spec §4.6 item 5:
// "sub, name, email, given_name, family_name, jti, iat, exp, roles[]".
type Claims struct {
	jwt.RegisteredClaims
	Name       string   `json:"name,omitempty"`
	Email      string   `json:"email,omitempty"`
	GivenName  string   `json:"given_name,omitempty"`
	FamilyName string   `json:"family_name,omitempty"`
	Roles      []string `json:"roles,omitempty"`
}

// JWTAlgorithm selects the access token signing algorithm, per spec
// §4.6 item 5 ("HS256 or RS256 per configuration").
type JWTAlgorithm string

const (
	JWTAlgorithmHS256 JWTAlgorithm = "HS256"
	JWTAlgorithmRS256 JWTAlgorithm = "RS256"
)

// JWTSigner issues and verifies access tokens. Two concrete
// implementations exist, selected by configuration (spec §4.6's
// "JWT signing key present and of correct length for algorithm"
// startup validation): HS256 over a shared secret, RS256 over an
// *rsa.PrivateKey.
type JWTSigner struct {
	algorithm JWTAlgorithm
	hmacKey   []byte
	rsaKey    *rsa.PrivateKey
	issuer    string
}

// NewHS256Signer builds a JWTSigner using an HMAC shared secret. The
// secret must be at least 32 bytes (startup validation enforces this
// per spec §4.6).
func NewHS256Signer(issuer string, secret []byte) *JWTSigner {
	return &JWTSigner{algorithm: JWTAlgorithmHS256, hmacKey: secret, issuer: issuer}
}

// NewRS256Signer builds a JWTSigner using an RSA keypair.
func NewRS256Signer(issuer string, key *rsa.PrivateKey) *JWTSigner {
	return &JWTSigner{algorithm: JWTAlgorithmRS256, rsaKey: key, issuer: issuer}
}

// Issue mints a signed access token for user, valid for ttl, returning
// the token string and its jti (used as the Session's TokenHash input).
func (s *JWTSigner) Issue(user *User, ttl time.Duration, now time.Time) (token string, jti string, err error) {
	jti = NewSessionID()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    s.issuer,
		},
		Name:       user.GivenName + " " + user.FamilyName,
		Email:      user.Email,
		GivenName:  user.GivenName,
		FamilyName: user.FamilyName,
		Roles:      user.Roles,
	}

	var method jwt.SigningMethod
	var key any
	switch s.algorithm {
	case JWTAlgorithmHS256:
		method, key = jwt.SigningMethodHS256, s.hmacKey
	case JWTAlgorithmRS256:
		method, key = jwt.SigningMethodRS256, s.rsaKey
	default:
		return "", "", fmt.Errorf("authn: unsupported JWT algorithm %q", s.algorithm)
	}

	tok := jwt.NewWithClaims(method, claims)
	signed, err := tok.SignedString(key)
	if err != nil {
		return "", "", fmt.Errorf("authn: signing access token: %w", err)
	}
	return signed, jti, nil
}

// Parse verifies token's signature and expiry, returning its claims.
func (s *JWTSigner) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		switch s.algorithm {
		case JWTAlgorithmHS256:
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("authn: unexpected signing method %v", t.Method)
			}
			return s.hmacKey, nil
		case JWTAlgorithmRS256:
			if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("authn: unexpected signing method %v", t.Method)
			}
			return &s.rsaKey.PublicKey, nil
		default:
			return nil, fmt.Errorf("authn: unsupported JWT algorithm %q", s.algorithm)
		}
	}, jwt.WithIssuer(s.issuer))
	if err != nil {
		return nil, fmt.Errorf("authn: parsing access token: %w", err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("authn: invalid access token")
	}
	return claims, nil
}
