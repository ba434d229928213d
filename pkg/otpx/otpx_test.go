package otpx_test

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/gatekeeper/pkg/otpx"
	"github.com/stretchr/testify/require"
)

func TestVerifySkewWindow(t *testing.T) {
	p := otpx.NewTOTP("gatekeeper")
	secret, err := p.GenerateSecret("a@x.com")
	require.NoError(t, err)

	// Align to the start of a step so ±30s lands exactly one step away.
	now := time.Unix(1700000010, 0).Truncate(30 * time.Second)

	tests := []struct {
		name   string
		offset time.Duration
		valid  bool
	}{
		{"now", 0, true},
		{"one step behind", -30 * time.Second, true},
		{"one step ahead", 30 * time.Second, true},
		{"two steps behind", -60 * time.Second, false},
		{"two steps ahead", 60 * time.Second, false},
		{"way off", -10 * time.Minute, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, err := otpx.Code(secret.Base32, now.Add(tt.offset))
			require.NoError(t, err)
			require.Equal(t, tt.valid, p.Verify(secret.Base32, code, now))
		})
	}
}

func TestVerifyRejectsEmpty(t *testing.T) {
	p := otpx.NewTOTP("gatekeeper")
	secret, err := p.GenerateSecret("a@x.com")
	require.NoError(t, err)

	require.False(t, p.Verify(secret.Base32, "", time.Now()))
	require.False(t, p.Verify("", "123456", time.Now()))
	require.False(t, p.Verify(secret.Base32, "not-a-code", time.Now()))
}

func TestGenerateSecret(t *testing.T) {
	p := otpx.NewTOTP("gatekeeper")
	secret, err := p.GenerateSecret("a@x.com")
	require.NoError(t, err)

	require.NotEmpty(t, secret.Base32)
	require.True(t, strings.HasPrefix(secret.URL, "otpauth://totp/"))
	require.Contains(t, secret.URL, "issuer=gatekeeper")
}

func TestQRDataURL(t *testing.T) {
	p := otpx.NewTOTP("gatekeeper")
	secret, err := p.GenerateSecret("a@x.com")
	require.NoError(t, err)

	url, err := otpx.QRDataURL(secret.URL)
	require.NoError(t, err)

	const prefix = "data:image/png;base64,"
	require.True(t, strings.HasPrefix(url, prefix))

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, prefix))
	require.NoError(t, err)
	require.Equal(t, "\x89PNG", string(raw[:4]))
}

func TestQRDataURLRejectsGarbage(t *testing.T) {
	_, err := otpx.QRDataURL("::not a url")
	require.Error(t, err)
}
