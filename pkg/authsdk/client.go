package authsdk

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// SDKClient is a client for the gatekeeper gateway. It covers the
// unauthenticated operations and creates authenticated Sessions.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewSDKClient creates a new gateway client.
func NewSDKClient(baseURL string) *SDKClient {
	return &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Login posts credentials. A two-factor account gets a LoginResponse with
// OTPRequired set; finish with VerifyOTP.
func (c *SDKClient) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	res, err := call[LoginResponse](ctx, c, http.MethodPost, "/v1/auth/login",
		LoginRequest{Email: email, Password: password}, "", http.StatusOK)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// VerifyOTP completes a two-factor login using the challenge token.
func (c *SDKClient) VerifyOTP(ctx context.Context, challengeToken, code string) (*TokenPair, error) {
	pair, err := call[TokenPair](ctx, c, http.MethodPost, "/v1/auth/verify-otp",
		OTPRequest{Code: code}, challengeToken, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return &pair, nil
}

// Authenticate logs in and returns a Session. If the account has two-factor
// enabled, code must be supplied through otp; otp may be nil otherwise.
func (c *SDKClient) Authenticate(ctx context.Context, email, password string, otp func() (string, error)) (*Session, error) {
	res, err := c.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}

	if !res.OTPRequired {
		return c.NewSession(res.AccessToken, res.RefreshToken), nil
	}

	if otp == nil {
		return nil, ErrOTPRequired
	}
	code, err := otp()
	if err != nil {
		return nil, err
	}

	pair, err := c.VerifyOTP(ctx, res.AccessToken, code)
	if err != nil {
		return nil, err
	}
	return c.NewSession(pair.AccessToken, pair.RefreshToken), nil
}

// RefreshTokens rotates refreshToken. The presented token is consumed even
// if the call fails downstream.
func (c *SDKClient) RefreshTokens(ctx context.Context, refreshToken string) (*TokenPair, error) {
	pair, err := call[TokenPair](ctx, c, http.MethodGet, "/v1/auth/refresh-token", nil, refreshToken, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return &pair, nil
}

// Logout revokes refreshToken.
func (c *SDKClient) Logout(ctx context.Context, refreshToken string) (string, error) {
	return call[string](ctx, c, http.MethodDelete, "/v1/auth/logout", nil, refreshToken, http.StatusOK)
}

// ForgotPassword requests a reset link. The answer is the same whether or not
// the account exists.
func (c *SDKClient) ForgotPassword(ctx context.Context, email string) (string, error) {
	return call[string](ctx, c, http.MethodPost, "/v1/auth/forgot-password", EmailRequest{Email: email}, "", http.StatusOK)
}

// ResetPassword redeems a reset token from the emailed link.
func (c *SDKClient) ResetPassword(ctx context.Context, token, password, confirm string) (string, error) {
	path := "/v1/auth/reset-password?token=" + url.QueryEscape(token)
	return call[string](ctx, c, http.MethodPost, path,
		ResetPasswordRequest{Password: password, ConfirmPassword: confirm}, "", http.StatusOK)
}

// Register creates an unverified account.
func (c *SDKClient) Register(ctx context.Context, req RegisterRequest) (*UserProfile, error) {
	p, err := call[UserProfile](ctx, c, http.MethodPost, "/v1/users/register", req, "", http.StatusCreated)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// VerifyEmail redeems a verification token from the emailed link.
func (c *SDKClient) VerifyEmail(ctx context.Context, token string) (string, error) {
	path := "/v1/users/verify-email?token=" + url.QueryEscape(token)
	return call[string](ctx, c, http.MethodGet, path, nil, "", http.StatusOK)
}

// ResendVerification requests a fresh verification link.
func (c *SDKClient) ResendVerification(ctx context.Context, email string) (string, error) {
	return call[string](ctx, c, http.MethodPost, "/v1/users/resend-email-verification",
		EmailRequest{Email: email}, "", http.StatusOK)
}
