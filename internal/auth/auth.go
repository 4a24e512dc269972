// README: Platform token verification (identity, role, vehicle class claims).
package auth

import (
	"errors"

	"github.com/golang-jwt/jwt/v4"

	"platera/internal/types"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrUnknownRole  = errors.New("unknown role")
)

// Identity is the verified caller attached to a request or connection.
type Identity struct {
	UserID       types.ID
	Role         types.Role
	VehicleClass types.VehicleClass // couriers only
	Phone        string
}

type Claims struct {
	jwt.RegisteredClaims
	Role         string `json:"role"`
	VehicleClass string `json:"vehicle_class,omitempty"`
	Phone        string `json:"phone,omitempty"`
}

// Verifier validates a raw token string and returns the caller identity.
type Verifier interface {
	Verify(token string) (Identity, error)
}

type hmacVerifier struct {
	key []byte
}

func NewVerifier(key string) Verifier {
	return &hmacVerifier{key: []byte(key)}
}

func (v *hmacVerifier) Verify(raw string) (Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return v.key, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}
	if claims.Subject == "" {
		return Identity{}, ErrInvalidToken
	}
	role := types.Role(claims.Role)
	if !types.ValidRole(role) {
		return Identity{}, ErrUnknownRole
	}
	return Identity{
		UserID:       types.ID(claims.Subject),
		Role:         role,
		VehicleClass: types.VehicleClass(claims.VehicleClass),
		Phone:        claims.Phone,
	}, nil
}
