package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/gateway/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/gateway/email"
	"github.com/aussiebroadwan/gatekeeper/internal/gateway/store/drivers/sqlite"
	"github.com/aussiebroadwan/gatekeeper/pkg/cryptox"
	"github.com/aussiebroadwan/gatekeeper/pkg/jwtx"
	"github.com/aussiebroadwan/gatekeeper/pkg/kv/drivers/memory"
	"github.com/aussiebroadwan/gatekeeper/pkg/otpx"
	"github.com/stretchr/testify/require"
)

// Mid-way through a TOTP step so that +-30s lands in the neighbouring steps.
var epoch = time.Unix(1_700_000_025, 0).UTC()

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sentMail struct {
	Event email.Event
	Msg   email.Message
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *recordingMailer) Emit(_ context.Context, event email.Event, msg email.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{Event: event, Msg: msg})
}

func (m *recordingMailer) Sent() []sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMail(nil), m.sent...)
}

type fixture struct {
	clock    *clock
	store    *sqlite.Store
	kv       *memory.Store
	cipher   *cryptox.Cipher
	hasher   cryptox.PasswordHasher
	mailer   *recordingMailer
	sessions *SessionService
	mfa      *MFAService
	actions  *ActionTokenService
	accounts *AccountService
}

func newFixture(t *testing.T, keying domain.RefreshKeying) *fixture {
	t.Helper()

	clk := &clock{now: epoch}

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations(context.Background()))

	kvs := memory.New(memory.Options{SweepInterval: -1, Now: clk.Now})
	t.Cleanup(func() { _ = kvs.Close() })

	issuer, err := jwtx.NewIssuer(jwtx.IssuerConfig{
		Issuer:    "gatekeeper-test",
		Access:    jwtx.KindConfig{Secret: "access-secret", TTL: jwtx.DefaultAccessTokenTTL},
		TwoFactor: jwtx.KindConfig{Secret: "twofactor-secret", TTL: jwtx.DefaultTwoFactorTokenTTL},
		Refresh:   jwtx.KindConfig{Secret: "refresh-secret", TTL: jwtx.DefaultRefreshTokenTTL},
		Now:       clk.Now,
	})
	require.NoError(t, err)

	cipher, err := cryptox.NewCipher("test-encryption-secret")
	require.NoError(t, err)

	f := &fixture{
		clock:  clk,
		store:  st,
		kv:     kvs,
		cipher: cipher,
		hasher: cryptox.NewArgon2Hasher("test-pepper"),
		mailer: &recordingMailer{},
	}

	f.sessions = &SessionService{
		Store:  st,
		KV:     kvs,
		Issuer: issuer,
		Cipher: cipher,
		Hasher: f.hasher,
		Keying: keying,
	}
	f.mfa = &MFAService{
		Store:    st,
		Sessions: f.sessions,
		Cipher:   cipher,
		OTP:      otpx.NewTOTP("gatekeeper-test"),
		Now:      clk.Now,
	}
	f.actions = &ActionTokenService{KV: kvs, TTL: domain.ActionTokenTTL}
	f.accounts = &AccountService{
		Store:            st,
		Hasher:           f.hasher,
		Actions:          f.actions,
		Sessions:         f.sessions,
		Mailer:           f.mailer,
		VerifyEmailURL:   "https://app.example/verify-email",
		ResetPasswordURL: "https://app.example/reset-password",
	}

	return f
}

// seedUser stores a verified user with the given password.
func (f *fixture) seedUser(t *testing.T, addr, password string) domain.User {
	t.Helper()

	hash, err := f.hasher.Hash(password)
	require.NoError(t, err)

	u := domain.User{
		ID:           "user-" + addr,
		FirstName:    "Ada",
		LastName:     "Lovelace",
		Email:        addr,
		PasswordHash: hash,
		Verified:     true,
		CreatedAt:    epoch,
		UpdatedAt:    epoch,
	}
	require.NoError(t, f.store.Users().CreateUser(context.Background(), u))
	return u
}

// enableTwoFactor runs setup and confirmation, returning the plaintext seed.
func (f *fixture) enableTwoFactor(t *testing.T, addr string) string {
	t.Helper()
	ctx := context.Background()

	setup, err := f.mfa.Initiate2FASetup(ctx, addr)
	require.NoError(t, err)

	code, err := otpx.Code(setup.Secret, f.clock.Now())
	require.NoError(t, err)

	_, err = f.mfa.Confirm2FASetup(ctx, code, addr)
	require.NoError(t, err)
	return setup.Secret
}

func (f *fixture) user(t *testing.T, addr string) domain.User {
	t.Helper()
	u, err := f.store.Users().GetUserByEmail(context.Background(), addr)
	require.NoError(t, err)
	return u
}
