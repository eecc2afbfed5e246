package httpapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Franckfetuedirane/FastGestiArt-sub000/internal/domain"
)

type authenticator struct {
	secret []byte
	ttl    time.Duration
}

type accessClaims struct {
	Role      string `json:"role"`
	ArtisanID string `json:"artisan_id,omitempty"`
	jwt.RegisteredClaims
}

func (a *authenticator) mintToken(account *domain.UserAccount) (string, time.Time, error) {
	expiresAt := time.Now().UTC().Add(a.ttl)
	claims := accessClaims{
		Role:      account.Role,
		ArtisanID: account.ArtisanID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.Username,
			IssuedAt:  jwt.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

func (a *authenticator) parseToken(raw string) (domain.Actor, error) {
	var claims accessClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return domain.Actor{}, fmt.Errorf("invalid token")
	}
	if claims.Subject == "" || claims.Role == "" {
		return domain.Actor{}, fmt.Errorf("invalid token claims")
	}
	return domain.Actor{
		Username:  claims.Subject,
		Role:      claims.Role,
		ArtisanID: claims.ArtisanID,
	}, nil
}

// csrfToken derives a stateless token from the username and the current hour
// bucket. Tokens from the current and previous hour verify, so a token is
// valid for at least one hour.
func (a *authenticator) csrfToken(username string, bucket int64) string {
	mac := hmac.New(sha256.New, a.secret)
	fmt.Fprintf(mac, "csrf:%s:%d", username, bucket)
	return hex.EncodeToString(mac.Sum(nil))
}

func (a *authenticator) currentCSRFToken(username string) string {
	return a.csrfToken(username, time.Now().UTC().Unix()/3600)
}

func (a *authenticator) verifyCSRFToken(username, token string) bool {
	if token == "" {
		return false
	}
	bucket := time.Now().UTC().Unix() / 3600
	for _, b := range []int64{bucket, bucket - 1} {
		if hmac.Equal([]byte(token), []byte(a.csrfToken(username, b))) {
			return true
		}
	}
	return false
}

// attemptLimiter throttles login attempts per client key with a sliding
// window.
type attemptLimiter struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
	max      int
	window   time.Duration
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	return &attemptLimiter{
		attempts: make(map[string][]time.Time),
		max:      max,
		window:   window,
	}
}

func (l *attemptLimiter) allow(key string) bool {
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.attempts[key][:0]
	for _, at := range l.attempts[key] {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	if len(kept) >= l.max {
		l.attempts[key] = kept
		return false
	}
	l.attempts[key] = append(kept, now)
	return true
}

func clientKey(remoteAddr string) string {
	if i := strings.LastIndex(remoteAddr, ":"); i > 0 {
		return remoteAddr[:i]
	}
	return remoteAddr
}
