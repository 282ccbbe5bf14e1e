// Package resulttoken signs battle outcomes so the settlement service can
// trust results reported through an untrusted client.
package resulttoken

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// TokenMaxAge is the freshness window past which tokens are rejected. It is
// the only replay defense; there is no nonce tracking.
const TokenMaxAge = 5 * time.Minute

var (
	ErrMalformed        = errors.New("resulttoken: malformed token")
	ErrInvalidSignature = errors.New("resulttoken: invalid signature")
	ErrExpired          = errors.New("resulttoken: token expired")
)

// Payload is the battle outcome embedded in a token. The receiving service
// must additionally check that PlayerID matches the authenticated caller
// before trusting Won or EloDelta.
type Payload struct {
	BattleID string `json:"battleId"`
	PlayerID string `json:"playerId"`
	Won      bool   `json:"won"`
	EloDelta int    `json:"eloDelta"`
	Ts       int64  `json:"ts"` // unix millis at signing time
}

// Sign serializes the payload and returns
// base64url(payload) + "." + base64url(hmac-sha256 over the payload segment).
func Sign(p Payload, secret []byte) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	payloadB64 := base64.RawURLEncoding.EncodeToString(raw)

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(payloadB64))
	sigB64 := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))

	return payloadB64 + "." + sigB64, nil
}

// Verify checks the token's signature and freshness and returns its payload.
func Verify(token string, secret []byte) (*Payload, error) {
	return verifyAt(token, secret, time.Now())
}

func verifyAt(token string, secret []byte, now time.Time) (*Payload, error) {
	payloadB64, sigB64, ok := strings.Cut(token, ".")
	if !ok {
		return nil, ErrMalformed
	}

	sig, err := base64.RawURLEncoding.DecodeString(sigB64)
	if err != nil {
		return nil, ErrMalformed
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(payloadB64))
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return nil, ErrInvalidSignature
	}

	raw, err := base64.RawURLEncoding.DecodeString(payloadB64)
	if err != nil {
		return nil, ErrMalformed
	}
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, ErrMalformed
	}

	if now.UnixMilli()-p.Ts > TokenMaxAge.Milliseconds() {
		return nil, ErrExpired
	}
	return &p, nil
}
