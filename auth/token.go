package auth

import (
	"fmt"
	"time"

	liberrors "chat-relay/errors"

	"chat-relay/domain/chat"

	"github.com/golang-jwt/jwt/v5"
)

// CustomClaims defines the structure of the data stored inside the JWT.
// The gateway issuing tokens and this relay must agree on these fields.
type CustomClaims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Verifier validates bearer tokens presented at websocket handshake time.
// It implements contract.TokenVerifier.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) Verifier {
	return Verifier{secret: []byte(secret)}
}

// Verify parses and validates the signature and expiration of a JWT string,
// returning the identity it carries. Any failure maps to ErrInvalidCredential
// so the caller can treat every bad token the same way.
func (v Verifier) Verify(tokenString string) (chat.Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return chat.Identity{}, fmt.Errorf("%w: %v", liberrors.ErrInvalidCredential, err)
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return chat.Identity{}, liberrors.ErrInvalidCredential
	}
	return chat.Identity{ID: claims.UserID, Username: claims.Username}, nil
}

// GenerateToken creates a signed JWT for a specific user.
// The relay never issues tokens in production; this is used by the terminal
// client and the tests to mint credentials compatible with Verify.
func GenerateToken(secret, userID, username string, duration time.Duration) (string, error) {
	expirationTime := time.Now().Add(duration)

	claims := &CustomClaims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "chat-relay",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
