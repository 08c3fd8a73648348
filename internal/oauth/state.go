package oauth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/slideruleearth/sliderule-auth/internal/platform/errors"
)

// stateCodec mints and verifies signed OAuth state parameters. The state
// carries the post-login return URL through the provider round trip
// without server-side session storage.
//
// Wire format: nonce:issuedAt:returnURLB64:signature, where the signature
// is hex-encoded HMAC-SHA256 over "nonce:issuedAt:returnURLB64".
type stateCodec struct {
	key    []byte
	expiry time.Duration
	now    func() time.Time
}

func newStateCodec(key []byte, expiry time.Duration, now func() time.Time) *stateCodec {
	if now == nil {
		now = time.Now
	}
	return &stateCodec{key: key, expiry: expiry, now: now}
}

// Create mints a signed state embedding returnURL.
func (c *stateCodec) Create(returnURL string) (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate state nonce: %w", err)
	}

	payload := fmt.Sprintf("%s:%d:%s",
		hex.EncodeToString(nonce),
		c.now().Unix(),
		base64.RawURLEncoding.EncodeToString([]byte(returnURL)),
	)
	return payload + ":" + c.sign(payload), nil
}

// Verify checks a state's structure, signature and age, and returns the
// embedded return URL.
func (c *stateCodec) Verify(state string) (string, error) {
	if state == "" {
		return "", errors.New(errors.CodeStateMissing, "Missing state parameter")
	}

	parts := strings.Split(state, ":")
	if len(parts) != 4 {
		return "", errors.New(errors.CodeStateMalformed, "Invalid state format")
	}
	nonce, issuedAtRaw, returnB64, signature := parts[0], parts[1], parts[2], parts[3]

	issuedAt, err := strconv.ParseInt(issuedAtRaw, 10, 64)
	if err != nil {
		return "", errors.New(errors.CodeStateMalformed, "Invalid state format")
	}

	returnBytes, err := base64.RawURLEncoding.DecodeString(returnB64)
	if err != nil {
		return "", errors.New(errors.CodeStateMalformed, "Invalid state format")
	}

	payload := nonce + ":" + issuedAtRaw + ":" + returnB64
	if !hmac.Equal([]byte(c.sign(payload)), []byte(signature)) {
		return "", errors.New(errors.CodeStateSignatureInvalid, "Invalid state signature")
	}

	if c.now().Unix()-issuedAt > int64(c.expiry/time.Second) {
		return "", errors.New(errors.CodeStateExpired, "State has expired")
	}

	return string(returnBytes), nil
}

func (c *stateCodec) sign(payload string) string {
	mac := hmac.New(sha256.New, c.key)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
