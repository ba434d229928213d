package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/hkdf"
)

// ErrDecryptionFailed is returned whenever a ciphertext cannot be opened,
// whether from a wrong key, truncation or tampering.
var ErrDecryptionFailed = errors.New("cryptox: decryption failed")

const cipherKeyLength = 32

var cipherInfo = []byte("gatekeeper secret encryption v1")

// Cipher encrypts small secrets (TOTP seeds, refresh token copies) with
// AES-256-GCM. The key is derived once from the configured secret and kept in
// a memguard enclave between uses.
type Cipher struct {
	key *memguard.Enclave
}

// NewCipher derives an AES-256 key from secret with HKDF-SHA256.
func NewCipher(secret string) (*Cipher, error) {
	if secret == "" {
		return nil, errors.New("cryptox: empty encryption secret")
	}

	h := hkdf.New(sha256.New, []byte(secret), nil, cipherInfo)
	k := make([]byte, cipherKeyLength)
	if _, err := io.ReadFull(h, k); err != nil {
		return nil, fmt.Errorf("reading from HKDF: %w", err)
	}

	// NewEnclave wipes k.
	return &Cipher{key: memguard.NewEnclave(k)}, nil
}

func (c *Cipher) gcm() (cipher.AEAD, func(), error) {
	buf, err := c.key.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("open key enclave: %w", err)
	}

	block, err := aes.NewCipher(buf.Bytes())
	if err != nil {
		buf.Destroy()
		return nil, nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		buf.Destroy()
		return nil, nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return aead, buf.Destroy, nil
}

// Encrypt seals plaintext and returns base64(nonce || ciphertext || tag).
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	aead, done, err := c.gcm()
	if err != nil {
		return "", err
	}
	defer done()

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Every failure is reported as ErrDecryptionFailed,
// never as an empty plaintext.
func (c *Cipher) Decrypt(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: malformed encoding", ErrDecryptionFailed)
	}

	aead, done, err := c.gcm()
	if err != nil {
		return "", err
	}
	defer done()

	nonceSize := aead.NonceSize()
	if len(raw) < nonceSize+aead.Overhead() {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecryptionFailed)
	}

	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	return string(plaintext), nil
}
