package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the identity a Session Turn API call is scoped to.
// start() hands back a signed token carrying these claims next to the
// session's opaque Session.ID (a random UUID) — the repository never needs
// a second lookup to prove "who owns this session", only a signature check.
type Claims struct {
	LearnerID uint   `json:"learnerId"`
	SessionID string `json:"sessionId"`
	TopicID   *uint  `json:"topicId,omitempty"`
	jwt.RegisteredClaims
}

// GenerateSessionToken signs an opaque session token for a learner/session/topic triple.
func GenerateSessionToken(secret string, learnerID uint, sessionID string, topicID *uint, duration time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		LearnerID: learnerID,
		SessionID: sessionID,
		TopicID:   topicID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseSessionToken verifies and decodes a session token.
func ParseSessionToken(secret, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid session token")
}
