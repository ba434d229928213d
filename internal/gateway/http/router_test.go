package http_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/gateway/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/gateway/email"
	gatewayhttp "github.com/aussiebroadwan/gatekeeper/internal/gateway/http"
	"github.com/aussiebroadwan/gatekeeper/internal/gateway/metrics"
	"github.com/aussiebroadwan/gatekeeper/internal/gateway/service"
	"github.com/aussiebroadwan/gatekeeper/internal/gateway/store/drivers/sqlite"
	"github.com/aussiebroadwan/gatekeeper/pkg/authsdk"
	"github.com/aussiebroadwan/gatekeeper/pkg/cryptox"
	"github.com/aussiebroadwan/gatekeeper/pkg/jwtx"
	"github.com/aussiebroadwan/gatekeeper/pkg/kv/drivers/memory"
	"github.com/aussiebroadwan/gatekeeper/pkg/otpx"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
	"github.com/stretchr/testify/require"
)

var reToken = regexp.MustCompile(`token=([0-9a-f]{64})`)

type inbox struct {
	mu   sync.Mutex
	msgs []email.Message
}

func (i *inbox) Emit(_ context.Context, _ email.Event, msg email.Message) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.msgs = append(i.msgs, msg)
}

func (i *inbox) count() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.msgs)
}

// lastToken returns the action token from the most recent mail.
func (i *inbox) lastToken(t *testing.T) string {
	t.Helper()
	i.mu.Lock()
	defer i.mu.Unlock()
	require.NotEmpty(t, i.msgs)
	m := reToken.FindStringSubmatch(i.msgs[len(i.msgs)-1].HTML)
	require.Len(t, m, 2)
	return m[1]
}

type gateway struct {
	server  *httptest.Server
	client  *authsdk.SDKClient
	inbox   *inbox
	metrics *metrics.Metrics
}

func newGateway(t *testing.T, limits *gatewayhttp.RateLimits) *gateway {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations(context.Background()))

	kvs := memory.New(memory.Options{})
	t.Cleanup(func() { _ = kvs.Close() })

	issuer, err := jwtx.NewIssuer(jwtx.IssuerConfig{
		Issuer:    "gatekeeper-test",
		Access:    jwtx.KindConfig{Secret: "access-secret", TTL: jwtx.DefaultAccessTokenTTL},
		TwoFactor: jwtx.KindConfig{Secret: "twofactor-secret", TTL: jwtx.DefaultTwoFactorTokenTTL},
		Refresh:   jwtx.KindConfig{Secret: "refresh-secret", TTL: jwtx.DefaultRefreshTokenTTL},
	})
	require.NoError(t, err)

	cipher, err := cryptox.NewCipher("test-encryption-secret")
	require.NoError(t, err)
	hasher := cryptox.NewArgon2Hasher("test-pepper")
	box := &inbox{}
	m := metrics.New()

	sessions := &service.SessionService{
		Store:   st,
		KV:      kvs,
		Issuer:  issuer,
		Cipher:  cipher,
		Hasher:  hasher,
		Keying:  domain.RefreshKeyingToken,
		Metrics: m,
	}

	router := gatewayhttp.NewRouter("test", st, kvs, slogx.Discard())
	router.SessionService = sessions
	router.MFAService = &service.MFAService{
		Store:    st,
		Sessions: sessions,
		Cipher:   cipher,
		OTP:      otpx.NewTOTP("gatekeeper-test"),
		Metrics:  m,
	}
	router.AccountService = &service.AccountService{
		Store:            st,
		Hasher:           hasher,
		Actions:          &service.ActionTokenService{KV: kvs, Metrics: m},
		Sessions:         sessions,
		Mailer:           box,
		VerifyEmailURL:   "https://app.example/verify-email",
		ResetPasswordURL: "https://app.example/reset-password",
	}
	router.Metrics = m
	router.Limits = gatewayhttp.RateLimits{}
	if limits != nil {
		router.Limits = *limits
	}
	router.ApplyRoutes()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &gateway{
		server:  srv,
		client:  authsdk.NewSDKClient(srv.URL),
		inbox:   box,
		metrics: m,
	}
}

// register creates and verifies an account.
func (g *gateway) register(t *testing.T, addr, password string) {
	t.Helper()
	ctx := context.Background()

	_, err := g.client.Register(ctx, authsdk.RegisterRequest{
		FirstName:       "Ada",
		LastName:        "Lovelace",
		Email:           addr,
		Password:        password,
		ConfirmPassword: password,
	})
	require.NoError(t, err)

	_, err = g.client.VerifyEmail(ctx, g.inbox.lastToken(t))
	require.NoError(t, err)
}

func TestRegisterVerifyAndSessionLifecycle(t *testing.T) {
	g := newGateway(t, nil)
	ctx := context.Background()

	profile, err := g.client.Register(ctx, authsdk.RegisterRequest{
		FirstName:       "Ada",
		LastName:        "Lovelace",
		Email:           "ada@example.com",
		Password:        "hunter22",
		ConfirmPassword: "hunter22",
	})
	require.NoError(t, err)
	require.False(t, profile.Verified)

	_, err = g.client.Login(ctx, "ada@example.com", "hunter22")
	require.Equal(t, http.StatusForbidden, authsdk.StatusCode(err))

	msg, err := g.client.VerifyEmail(ctx, g.inbox.lastToken(t))
	require.NoError(t, err)
	require.Equal(t, service.MsgEmailVerified, msg)

	session, err := g.client.Authenticate(ctx, "ada@example.com", "hunter22", nil)
	require.NoError(t, err)

	me, err := session.Profile(ctx)
	require.NoError(t, err)
	require.Equal(t, "ada@example.com", me.Email)
	require.True(t, me.Verified)

	before := session.Tokens()
	require.NoError(t, session.Refresh(ctx))
	after := session.Tokens()
	require.NotEqual(t, before.RefreshToken, after.RefreshToken)

	// The rotated token is dead.
	_, err = g.client.RefreshTokens(ctx, before.RefreshToken)
	require.Equal(t, http.StatusUnauthorized, authsdk.StatusCode(err))

	msg, err = session.Logout(ctx)
	require.NoError(t, err)
	require.Equal(t, service.MsgLoggedOut, msg)

	_, err = g.client.RefreshTokens(ctx, after.RefreshToken)
	require.Equal(t, http.StatusUnauthorized, authsdk.StatusCode(err))
}

func TestSessionRefreshesOnRejectedAccessToken(t *testing.T) {
	g := newGateway(t, nil)
	ctx := context.Background()
	g.register(t, "ada@example.com", "hunter22")

	res, err := g.client.Login(ctx, "ada@example.com", "hunter22")
	require.NoError(t, err)

	session := g.client.NewSession("not-a-jwt", res.RefreshToken)
	me, err := session.Profile(ctx)
	require.NoError(t, err)
	require.Equal(t, "ada@example.com", me.Email)
	require.NotEqual(t, res.RefreshToken, session.Tokens().RefreshToken)
}

func TestTwoFactorFlow(t *testing.T) {
	g := newGateway(t, nil)
	ctx := context.Background()
	g.register(t, "ada@example.com", "hunter22")

	session, err := g.client.Authenticate(ctx, "ada@example.com", "hunter22", nil)
	require.NoError(t, err)

	setup, err := session.InitiateTwoFactor(ctx)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(setup.QRCode, "data:image/png;base64,"))

	// Setup alone does not activate two-factor.
	res, err := g.client.Login(ctx, "ada@example.com", "hunter22")
	require.NoError(t, err)
	require.False(t, res.OTPRequired)

	code := func() (string, error) { return otpx.Code(setup.Secret, time.Now()) }
	current, err := code()
	require.NoError(t, err)

	msg, err := session.ConfirmTwoFactor(ctx, current)
	require.NoError(t, err)
	require.Equal(t, service.MsgTwoFactorEnabled, msg)

	_, err = session.ConfirmTwoFactor(ctx, current)
	require.Equal(t, http.StatusBadRequest, authsdk.StatusCode(err))

	res, err = g.client.Login(ctx, "ada@example.com", "hunter22")
	require.NoError(t, err)
	require.True(t, res.OTPRequired)
	require.Empty(t, res.RefreshToken)

	// A challenge token is not an access token.
	_, err = g.client.NewSession(res.AccessToken, "").Profile(ctx)
	require.Equal(t, http.StatusUnauthorized, authsdk.StatusCode(err))

	// And an access token is not a challenge token.
	_, err = g.client.VerifyOTP(ctx, session.Tokens().AccessToken, current)
	require.Equal(t, http.StatusUnauthorized, authsdk.StatusCode(err))

	_, err = g.client.VerifyOTP(ctx, res.AccessToken, "12345")
	require.Equal(t, http.StatusBadRequest, authsdk.StatusCode(err))

	_, err = g.client.Authenticate(ctx, "ada@example.com", "hunter22", nil)
	require.ErrorIs(t, err, authsdk.ErrOTPRequired)

	second, err := g.client.Authenticate(ctx, "ada@example.com", "hunter22", code)
	require.NoError(t, err)

	current, err = code()
	require.NoError(t, err)
	_, err = second.DisableTwoFactor(ctx, current)
	require.NoError(t, err)

	res, err = g.client.Login(ctx, "ada@example.com", "hunter22")
	require.NoError(t, err)
	require.False(t, res.OTPRequired)
}

func TestForgotAndResetPassword(t *testing.T) {
	g := newGateway(t, nil)
	ctx := context.Background()
	g.register(t, "ada@example.com", "hunter22")
	mails := g.inbox.count()

	ghost, err := g.client.ForgotPassword(ctx, "ghost@example.com")
	require.NoError(t, err)
	require.Equal(t, mails, g.inbox.count())

	known, err := g.client.ForgotPassword(ctx, "ada@example.com")
	require.NoError(t, err)
	require.Equal(t, ghost, known)
	require.Equal(t, mails+1, g.inbox.count())

	token := g.inbox.lastToken(t)

	_, err = g.client.ResetPassword(ctx, token, "new-pass", "different")
	require.Equal(t, http.StatusBadRequest, authsdk.StatusCode(err))

	_, err = g.client.ResetPassword(ctx, token, "new-pass", "new-pass")
	require.NoError(t, err)

	_, err = g.client.ResetPassword(ctx, token, "new-pass", "new-pass")
	require.Equal(t, http.StatusBadRequest, authsdk.StatusCode(err))

	_, err = g.client.Login(ctx, "ada@example.com", "hunter22")
	require.Equal(t, http.StatusUnauthorized, authsdk.StatusCode(err))

	_, err = g.client.Login(ctx, "ada@example.com", "new-pass")
	require.NoError(t, err)
}

func TestResendVerificationIsIndistinguishable(t *testing.T) {
	g := newGateway(t, nil)
	ctx := context.Background()
	g.register(t, "ada@example.com", "hunter22")

	ghost, err := g.client.ResendVerification(ctx, "ghost@example.com")
	require.NoError(t, err)
	verified, err := g.client.ResendVerification(ctx, "ada@example.com")
	require.NoError(t, err)
	require.Equal(t, ghost, verified)
}

func TestDeleteAccount(t *testing.T) {
	g := newGateway(t, nil)
	ctx := context.Background()
	g.register(t, "ada@example.com", "hunter22")

	session, err := g.client.Authenticate(ctx, "ada@example.com", "hunter22", nil)
	require.NoError(t, err)

	_, err = session.DeleteAccount(ctx)
	require.NoError(t, err)

	_, err = g.client.Login(ctx, "ada@example.com", "hunter22")
	require.Equal(t, http.StatusUnauthorized, authsdk.StatusCode(err))

	// The access token outlives the account but finds nothing.
	_, err = g.client.NewSession(session.Tokens().AccessToken, "").Profile(ctx)
	require.Equal(t, http.StatusNotFound, authsdk.StatusCode(err))
}

func TestErrorEnvelope(t *testing.T) {
	g := newGateway(t, nil)
	ctx := context.Background()
	g.register(t, "ada@example.com", "hunter22")

	_, err := g.client.Login(ctx, "ada@example.com", "wrong-password")
	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	require.Equal(t, "Invalid credentials", apiErr.Message)

	resp, err := http.Post(g.server.URL+"/v1/auth/login", "application/json", strings.NewReader(`{"email":`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, err = g.client.Register(ctx, authsdk.RegisterRequest{Email: "not-an-email"})
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	require.Contains(t, apiErr.Message, "email: must be a valid email address")
}

func TestRateLimitedRoutes(t *testing.T) {
	g := newGateway(t, &gatewayhttp.RateLimits{
		Auth:           gatewayhttp.DefaultRateLimits().Auth,
		ForgotPassword: gatewayhttp.DefaultRateLimits().ForgotPassword,
	})
	ctx := context.Background()

	_, err := g.client.ForgotPassword(ctx, "ghost@example.com")
	require.NoError(t, err)
	_, err = g.client.ForgotPassword(ctx, "ghost@example.com")
	require.Equal(t, http.StatusTooManyRequests, authsdk.StatusCode(err))

	for range 4 {
		_, err = g.client.Login(ctx, "ghost@example.com", "whatever")
		require.Equal(t, http.StatusUnauthorized, authsdk.StatusCode(err))
	}
	_, err = g.client.Login(ctx, "ghost@example.com", "whatever")
	require.Equal(t, http.StatusTooManyRequests, authsdk.StatusCode(err))
}

func TestHealthAndMetrics(t *testing.T) {
	g := newGateway(t, nil)
	ctx := context.Background()

	live, err := g.client.GetLiveness(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", live.Status)

	ready, err := g.client.GetReadiness(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", ready.Status)
	require.Equal(t, "ok", ready.Checks.Database)
	require.Equal(t, "ok", ready.Checks.KV)

	_, _ = g.client.Login(ctx, "ghost@example.com", "whatever")

	resp, err := http.Get(g.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `gatekeeper_logins_total{result="rejected"} 1`)
	require.Contains(t, string(body), `route="POST /v1/auth/login"`)
}
