package utils

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// WriteJSON writes v as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// --- JWT identity helpers ---

// GenerateIdentityToken issues an HS256 token asserting a player id. The
// settlement endpoint uses it to tie a result token to its caller.
func GenerateIdentityToken(playerID string, jwtSecret []byte) (string, error) {
	claims := jwt.MapClaims{
		"playerId": playerID,
		"exp":      time.Now().Add(24 * time.Hour).Unix(),
		"iat":      time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}

// PlayerIDFromRequest extracts the authenticated player id from a Bearer
// token in the Authorization header.
func PlayerIDFromRequest(r *http.Request, jwtSecret []byte) (string, error) {
	auth := r.Header.Get("Authorization")
	raw, found := strings.CutPrefix(auth, "Bearer ")
	if !found || raw == "" {
		return "", errors.New("missing bearer token")
	}

	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return "", errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}
	playerID, _ := claims["playerId"].(string)
	if playerID == "" {
		return "", errors.New("missing playerId claim")
	}
	return playerID, nil
}
