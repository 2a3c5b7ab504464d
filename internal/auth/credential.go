// Package auth issues and verifies the join credentials the relay accepts on its websocket endpoint.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dkeye/Huddle/internal/domain"
)

var (
	ErrMalformed = errors.New("malformed credential")
	ErrSignature = errors.New("bad credential signature")
	ErrExpired   = errors.New("credential expired")
	ErrNoSecret  = errors.New("signing secret is empty")
)

// Claims is what a credential grants: one participant identity in one room until Expires.
type Claims struct {
	ID      string               `json:"jti"`
	Subject domain.ParticipantID `json:"sub"`
	Name    string               `json:"name"`
	Room    domain.RoomName      `json:"room"`
	Expires int64                `json:"exp"`
}

type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSigner(secret string, ttl time.Duration) (*Signer, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Signer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue mints a credential for name in room with a fresh participant id.
func (s *Signer) Issue(room domain.RoomName, name string) (string, Claims, error) {
	user, err := domain.NewUser(name)
	if err != nil {
		return "", Claims{}, err
	}
	if room == "" {
		return "", Claims{}, fmt.Errorf("%w: empty room", ErrMalformed)
	}
	claims := Claims{
		ID:      uuid.NewString(),
		Subject: user.ID,
		Name:    user.Username,
		Room:    room,
		Expires: s.now().Add(s.ttl).Unix(),
	}
	body, err := json.Marshal(claims)
	if err != nil {
		return "", Claims{}, err
	}
	payload := base64.RawURLEncoding.EncodeToString(body)
	return payload + "." + s.sign(payload), claims, nil
}

func (s *Signer) Verify(token string) (Claims, error) {
	payload, sig, ok := strings.Cut(token, ".")
	if !ok || payload == "" || sig == "" {
		return Claims{}, ErrMalformed
	}
	if !hmac.Equal([]byte(sig), []byte(s.sign(payload))) {
		return Claims{}, ErrSignature
	}
	body, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	var claims Claims
	if err := json.Unmarshal(body, &claims); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if claims.Subject == "" || claims.Room == "" {
		return Claims{}, ErrMalformed
	}
	if s.now().Unix() >= claims.Expires {
		return Claims{}, ErrExpired
	}
	return claims, nil
}

func (s *Signer) sign(payload string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
