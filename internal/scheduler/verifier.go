package scheduler

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidCallback means the sweep callback's signature did not verify.
var ErrInvalidCallback = errors.New("invalid scheduler callback signature")

// callbackClaims are the claims the queue signs into each callback token.
// Body is the URL-safe base64 SHA-256 of the delivered body, binding the
// token to the exact bytes delivered.
type callbackClaims struct {
	Body string `json:"body"`
	URL  string `json:"url"`
	jwt.RegisteredClaims
}

// Verifier validates queue callback tokens. Two signing keys are accepted so
// key rotation does not drop in-flight jobs.
type Verifier struct {
	currentKey  string
	nextKey     string
	callbackURL string
}

// NewVerifier creates a callback verifier.
func NewVerifier(currentKey, nextKey, callbackURL string) *Verifier {
	return &Verifier{
		currentKey:  currentKey,
		nextKey:     nextKey,
		callbackURL: callbackURL,
	}
}

// Verify checks the callback token against the raw delivered body. The raw
// body must be used; re-serialization would change the hash.
func (v *Verifier) Verify(token string, body []byte) error {
	claims, err := v.parseWithKey(token, v.currentKey)
	if err != nil && v.nextKey != "" {
		claims, err = v.parseWithKey(token, v.nextKey)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCallback, err)
	}

	if v.callbackURL != "" && claims.URL != v.callbackURL {
		return fmt.Errorf("%w: token bound to different URL", ErrInvalidCallback)
	}

	sum := sha256.Sum256(body)
	bodyHash := base64.RawURLEncoding.EncodeToString(sum[:])
	if claims.Body != bodyHash {
		return fmt.Errorf("%w: body hash mismatch", ErrInvalidCallback)
	}
	return nil
}

func (v *Verifier) parseWithKey(token, key string) (*callbackClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &callbackClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(key), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*callbackClaims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid claims")
	}
	return claims, nil
}

// SignCallback builds a callback token for the given body. The scheduler's
// local timer mode and tests use it to produce callbacks shaped exactly like
// the queue's.
func SignCallback(key, callbackURL string, body []byte) (string, error) {
	sum := sha256.Sum256(body)
	claims := callbackClaims{
		Body: base64.RawURLEncoding.EncodeToString(sum[:]),
		URL:  callbackURL,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		return "", fmt.Errorf("sign callback: %w", err)
	}
	return token, nil
}
