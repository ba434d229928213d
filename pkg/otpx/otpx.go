// Package otpx wraps pquerna/otp for TOTP enrolment and verification.
package otpx

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	// Period is the TOTP step length.
	Period = 30

	// Skew is how many steps either side of now are accepted.
	Skew = 1

	qrSize = 200
)

// Secret is a freshly generated TOTP seed.
type Secret struct {
	Base32 string
	URL    string // otpauth:// provisioning URI
}

// Provider generates and checks TOTP codes.
type Provider interface {
	GenerateSecret(account string) (Secret, error)
	Verify(secret, code string, at time.Time) bool
}

// TOTP is the default Provider: SHA1, six digits, 30s period, one step skew.
type TOTP struct {
	Issuer string
}

func NewTOTP(issuer string) *TOTP {
	return &TOTP{Issuer: issuer}
}

func (p *TOTP) GenerateSecret(account string) (Secret, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      p.Issuer,
		AccountName: account,
		Period:      Period,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return Secret{}, fmt.Errorf("generate totp secret: %w", err)
	}

	return Secret{Base32: key.Secret(), URL: key.URL()}, nil
}

// Verify reports whether code is valid for secret at the given time, allowing
// one step of clock drift either side.
func (p *TOTP) Verify(secret, code string, at time.Time) bool {
	code = strings.TrimSpace(code)
	if secret == "" || code == "" {
		return false
	}

	ok, err := totp.ValidateCustom(code, secret, at.UTC(), totp.ValidateOpts{
		Period:    Period,
		Skew:      Skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

// Code generates the code for secret at t. Used by tests and tooling.
func Code(secret string, t time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, t.UTC(), totp.ValidateOpts{
		Period:    Period,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
}

// QRDataURL renders an otpauth URL as a base64 PNG data URL.
func QRDataURL(otpauthURL string) (string, error) {
	key, err := otp.NewKeyFromURL(otpauthURL)
	if err != nil {
		return "", fmt.Errorf("parse otpauth url: %w", err)
	}

	img, err := key.Image(qrSize, qrSize)
	if err != nil {
		return "", fmt.Errorf("render qr code: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode qr png: %w", err)
	}

	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
