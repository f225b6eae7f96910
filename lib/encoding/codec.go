// Package encoding provides a compact tamper-evident codec for engine state
// that leaves the process, such as exported navigation history.
//
// Values are serialized with msgpack and wrapped in one of two envelopes:
//   - Signed: base64 payload + HMAC-SHA256 signature, visible but tamper-proof
//   - Encrypted: AES-256-GCM, fully opaque
package encoding

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// Sentinel errors for envelope failures.
var (
	ErrInvalidFormat    = errors.New("encoding: invalid envelope format")
	ErrSignatureInvalid = errors.New("encoding: signature verification failed")
	ErrDecryptFailed    = errors.New("encoding: decryption failed")
)

// Codec signs or encrypts msgpack-serialized values with a shared key.
type Codec struct {
	key []byte
	gcm cipher.AEAD
}

// NewCodec creates a codec from key. Keys shorter than 32 bytes are
// stretched through SHA-256 so any passphrase works.
func NewCodec(key []byte) (*Codec, error) {
	if len(key) < 32 {
		h := sha256.Sum256(key)
		key = h[:]
	}

	block, err := aes.NewCipher(key[:32])
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &Codec{key: key, gcm: gcm}, nil
}

// Sign serializes v and returns a signed (but readable) envelope of the
// form "payload.signature", both base64url without padding.
func (c *Codec) Sign(v any) (string, error) {
	packed, err := msgpack.Marshal(v)
	if err != nil {
		return "", err
	}

	b64 := base64.RawURLEncoding.EncodeToString(packed)
	mac := hmac.New(sha256.New, c.key)
	mac.Write(packed)
	sig := base64.RawURLEncoding.EncodeToString(mac.Sum(nil)[:16])
	return b64 + "." + sig, nil
}

// Verify checks the signature on encoded and deserializes the payload
// into v.
func (c *Codec) Verify(encoded string, v any) error {
	parts := strings.SplitN(encoded, ".", 2)
	if len(parts) != 2 {
		return ErrInvalidFormat
	}

	packed, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return ErrInvalidFormat
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return ErrInvalidFormat
	}

	mac := hmac.New(sha256.New, c.key)
	mac.Write(packed)
	if !hmac.Equal(sig, mac.Sum(nil)[:16]) {
		return ErrSignatureInvalid
	}

	return msgpack.Unmarshal(packed, v)
}

// Encrypt serializes v and returns an AES-256-GCM encrypted envelope.
func (c *Codec) Encrypt(v any) (string, error) {
	packed, err := msgpack.Marshal(v)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	ciphertext := c.gcm.Seal(nonce, nonce, packed, nil)
	return base64.RawURLEncoding.EncodeToString(ciphertext), nil
}

// Decrypt reverses Encrypt, deserializing the payload into v.
func (c *Codec) Decrypt(encoded string, v any) error {
	ciphertext, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return ErrInvalidFormat
	}
	if len(ciphertext) < c.gcm.NonceSize() {
		return ErrDecryptFailed
	}

	nonce := ciphertext[:c.gcm.NonceSize()]
	packed, err := c.gcm.Open(nil, nonce, ciphertext[c.gcm.NonceSize():], nil)
	if err != nil {
		return ErrDecryptFailed
	}
	return msgpack.Unmarshal(packed, v)
}
