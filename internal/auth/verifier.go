package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role distinguishes the two kinds of users that can hold a live connection.
type Role string

const (
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrUnknownRole  = errors.New("unknown role in token")
)

// ParseRole validates a role string coming from an external source.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleDoctor, RolePatient:
		return Role(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

// Identity is the result of verifying a credential. It is bound to a
// connection for its whole lifetime and never persisted here.
type Identity struct {
	UserID int64
	Role   Role
	// DoctorID is the patient's assigned doctor, when the issuer knows it.
	// Zero means unassigned.
	DoctorID int64
}

// Claims is the JWT payload issued by the login service. Field names match
// the tokens already in circulation.
type Claims struct {
	UserID   int64  `json:"id"`
	Role     string `json:"role"`
	DoctorID int64  `json:"doctor_id,omitempty"`
	jwt.RegisteredClaims
}

// Verifier turns opaque credential strings into identities. Tokens are
// HS256-signed; issuance lives in the login service, but Issue is kept here
// so tests and tooling can mint valid tokens against the same secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and validates a token, returning the identity it carries.
func (v *Verifier) Verify(token string) (Identity, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}

	role, err := ParseRole(claims.Role)
	if err != nil {
		return Identity{}, err
	}
	if claims.UserID <= 0 {
		return Identity{}, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}

	return Identity{UserID: claims.UserID, Role: role, DoctorID: claims.DoctorID}, nil
}

// Issue creates a signed token for the given identity.
func (v *Verifier) Issue(id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:   id.UserID,
		Role:     string(id.Role),
		DoctorID: id.DoctorID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    "porthealth",
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
