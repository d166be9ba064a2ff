package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenIssuer = "datavault"

	// DefaultTokenTTL bounds the short-lived bearer credential; the renewable
	// session artifact is the 7-day cookie set at login.
	DefaultTokenTTL = 60 * time.Minute
)

// Claims is the decoded payload of an identity token. The wire names are a
// fixed contract: integer subject id, integer permission-id snapshot, and
// epoch-second timestamps.
type Claims struct {
	Subject       int64   `json:"sub"`
	PermissionIDs []int64 `json:"perms"`
	IssuedAt      int64   `json:"iat"`
	ExpiresAt     int64   `json:"exp"`
	Issuer        string  `json:"iss,omitempty"`
	ID            string  `json:"jti,omitempty"`
}

func (c Claims) GetExpirationTime() (*jwt.NumericDate, error) {
	if c.ExpiresAt == 0 {
		return nil, nil
	}
	return jwt.NewNumericDate(time.Unix(c.ExpiresAt, 0)), nil
}

func (c Claims) GetIssuedAt() (*jwt.NumericDate, error) {
	if c.IssuedAt == 0 {
		return nil, nil
	}
	return jwt.NewNumericDate(time.Unix(c.IssuedAt, 0)), nil
}

func (c Claims) GetNotBefore() (*jwt.NumericDate, error) { return nil, nil }
func (c Claims) GetIssuer() (string, error)              { return c.Issuer, nil }
func (c Claims) GetSubject() (string, error)             { return strconv.FormatInt(c.Subject, 10), nil }
func (c Claims) GetAudience() (jwt.ClaimStrings, error)  { return nil, nil }

// Codec signs and verifies identity tokens with an HMAC secret. The secret is
// injected at construction and immutable afterwards; Decode never mutates
// codec state, so a single Codec is safe for concurrent use.
type Codec struct {
	secret []byte
	now    func() time.Time
}

// NewCodec constructs a Codec from the process-wide signing secret.
func NewCodec(secret []byte) (*Codec, error) {
	if len(secret) == 0 {
		return nil, errors.New("auth: signing secret is required")
	}
	key := make([]byte, len(secret))
	copy(key, secret)
	return &Codec{secret: key, now: time.Now}, nil
}

// WithClock overrides the codec's time source. Only intended for tests.
func (c *Codec) WithClock(fn func() time.Time) *Codec {
	if fn != nil {
		c.now = fn
	}
	return c
}

// Encode mints a signed HS256 token carrying the subject id and a snapshot of
// its permission ids. A new token is issued per successful authentication;
// tokens are never updated in place.
func (c *Codec) Encode(subjectID int64, permissionIDs []int64, issuedAt time.Time, ttl time.Duration) (string, error) {
	if subjectID <= 0 {
		return "", fmt.Errorf("%w: subject id is required", ErrInvalidInput)
	}
	if ttl <= 0 {
		return "", fmt.Errorf("%w: ttl must be greater than zero", ErrInvalidInput)
	}
	issuedAt = issuedAt.UTC()
	claims := Claims{
		Subject:       subjectID,
		PermissionIDs: dedupeIDs(permissionIDs),
		IssuedAt:      issuedAt.Unix(),
		ExpiresAt:     issuedAt.Add(ttl).Unix(),
		Issuer:        tokenIssuer,
		ID:            uuid.NewString(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Decode verifies the signature and lifetime of a token and returns its
// claims. Failures map onto ErrTokenExpired, ErrTokenSignature, or
// ErrTokenMalformed; all of them match ErrInvalidToken.
func (c *Codec) Decode(token string) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, ErrTokenMalformed
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrTokenSignature
		}
		return c.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return c.now().UTC() }))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return Claims{}, ErrTokenExpired
		case errors.Is(err, jwt.ErrSignatureInvalid), errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, ErrTokenSignature):
			return Claims{}, ErrTokenSignature
		default:
			return Claims{}, ErrTokenMalformed
		}
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, ErrTokenMalformed
	}
	if err := c.validate(claims); err != nil {
		return Claims{}, err
	}
	claims.PermissionIDs = dedupeIDs(claims.PermissionIDs)
	return *claims, nil
}

func (c *Codec) validate(claims *Claims) error {
	if claims.Subject <= 0 {
		return ErrTokenMalformed
	}
	if claims.IssuedAt == 0 || claims.ExpiresAt == 0 {
		return ErrTokenMalformed
	}
	if claims.ExpiresAt < claims.IssuedAt {
		return ErrTokenMalformed
	}
	now := c.now().UTC()
	if now.Unix() >= claims.ExpiresAt {
		return ErrTokenExpired
	}
	// Allow 5 seconds of clock skew on issued-at.
	if claims.IssuedAt > now.Add(5*time.Second).Unix() {
		return ErrTokenMalformed
	}
	return nil
}

func dedupeIDs(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
