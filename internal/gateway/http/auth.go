package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/gatekeeper/internal/gateway/service"
	"github.com/aussiebroadwan/gatekeeper/pkg/authsdk"
	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
	"github.com/aussiebroadwan/gatekeeper/pkg/jwtx"
)

// AuthHandler serves /v1/auth.
type AuthHandler struct {
	Sessions *service.SessionService
	MFA      *service.MFAService
	Accounts *service.AccountService
}

func claimsOrReject(w http.ResponseWriter, r *http.Request) (jwtx.Claims, bool) {
	claims, ok := httpx.ClaimsFromContext(r.Context())
	if !ok || claims.Email == "" {
		authsdk.ErrInvalidToken.WriteError(w)
		return jwtx.Claims{}, false
	}
	return claims, true
}

// HandleLogin handles POST /v1/auth/login
//
//	@Summary		Password login
//	@Description	Checks credentials. Accounts with two-factor enabled receive a short lived challenge token in accessToken and otpRequired=true.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.LoginRequest							true	"Credentials"
//	@Success		200		{object}	authsdk.Envelope[authsdk.LoginResponse]
//	@Failure		400		{object}	authsdk.ErrorResponse	"Malformed request"
//	@Failure		401		{object}	authsdk.ErrorResponse	"Invalid credentials"
//	@Failure		403		{object}	authsdk.ErrorResponse	"Email not verified"
//	@Failure		429		{object}	authsdk.ErrorResponse	"Rate limited"
//	@Router			/v1/auth/login [post].
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest[authsdk.LoginRequest](w, r)
	if !ok {
		return
	}

	res, err := h.Sessions.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}

	httpx.WriteSuccess(w, http.StatusOK, authsdk.LoginResponse{
		OTPRequired:  res.OTPRequired,
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
	})
}

// HandleRefresh handles GET /v1/auth/refresh-token
//
//	@Summary		Rotate refresh token
//	@Description	Consumes the presented refresh token and issues a new pair. Replaying a rotated token fails with 401.
//	@Tags			Auth
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.Envelope[authsdk.TokenPair]
//	@Failure		401	{object}	authsdk.ErrorResponse	"Missing, expired or already rotated refresh token"
//	@Failure		404	{object}	authsdk.ErrorResponse	"User no longer exists"
//	@Router			/v1/auth/refresh-token [get].
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsOrReject(w, r)
	if !ok {
		return
	}

	token, _ := httpx.BearerToken(r)

	pair, err := h.Sessions.RotateRefresh(r.Context(), token, claims)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}

	httpx.WriteSuccess(w, http.StatusOK, authsdk.TokenPair{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// HandleEnable2FA handles GET /v1/auth/enable-2fa
//
//	@Summary		Start two-factor setup
//	@Description	Generates and stores a new TOTP seed. Two-factor stays disabled until confirmed with a code.
//	@Tags			Auth
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.Envelope[authsdk.TwoFactorSetupResponse]
//	@Failure		400	{object}	authsdk.ErrorResponse	"Two-factor already enabled"
//	@Failure		401	{object}	authsdk.ErrorResponse	"Invalid or missing access token"
//	@Router			/v1/auth/enable-2fa [get].
func (h *AuthHandler) HandleEnable2FA(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsOrReject(w, r)
	if !ok {
		return
	}

	setup, err := h.MFA.Initiate2FASetup(r.Context(), claims.Email)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}

	httpx.WriteSuccess(w, http.StatusOK, authsdk.TwoFactorSetupResponse{
		QRCode: setup.QRCode,
		Secret: setup.Secret,
	})
}

// HandleConfirm2FA handles POST /v1/auth/confirm-2fa
//
//	@Summary		Confirm two-factor setup
//	@Tags			Auth
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.OTPRequest	true	"Code from the authenticator app"
//	@Success		200		{object}	authsdk.Envelope[string]
//	@Failure		400		{object}	authsdk.ErrorResponse	"Already enabled or no pending seed"
//	@Failure		401		{object}	authsdk.ErrorResponse	"Invalid code or token"
//	@Router			/v1/auth/confirm-2fa [post].
func (h *AuthHandler) HandleConfirm2FA(w http.ResponseWriter, r *http.Request) {
	h.withCode(w, r, h.MFA.Confirm2FASetup)
}

// HandleDisable2FA handles POST /v1/auth/disable-2fa
//
//	@Summary		Disable two-factor
//	@Tags			Auth
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.OTPRequest	true	"Current code"
//	@Success		200		{object}	authsdk.Envelope[string]
//	@Failure		400		{object}	authsdk.ErrorResponse	"Two-factor not enabled"
//	@Failure		401		{object}	authsdk.ErrorResponse	"Invalid code or token"
//	@Router			/v1/auth/disable-2fa [post].
func (h *AuthHandler) HandleDisable2FA(w http.ResponseWriter, r *http.Request) {
	h.withCode(w, r, h.MFA.Disable2FA)
}

func (h *AuthHandler) withCode(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, code, email string) (string, error),
) {
	claims, ok := claimsOrReject(w, r)
	if !ok {
		return
	}
	req, ok := decodeRequest[authsdk.OTPRequest](w, r)
	if !ok {
		return
	}

	msg, err := op(r.Context(), req.Code, claims.Email)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, msg)
}

// HandleVerifyOTP handles POST /v1/auth/verify-otp
//
//	@Summary		Complete a two-factor login
//	@Description	Requires the challenge token returned by login in the bearer header.
//	@Tags			Auth
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.OTPRequest	true	"Code from the authenticator app"
//	@Success		200		{object}	authsdk.Envelope[authsdk.TokenPair]
//	@Failure		400		{object}	authsdk.ErrorResponse	"Two-factor not enabled"
//	@Failure		401		{object}	authsdk.ErrorResponse	"Invalid code or challenge token"
//	@Router			/v1/auth/verify-otp [post].
func (h *AuthHandler) HandleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsOrReject(w, r)
	if !ok {
		return
	}
	req, ok := decodeRequest[authsdk.OTPRequest](w, r)
	if !ok {
		return
	}

	pair, err := h.MFA.Verify2FACode(r.Context(), req.Code, claims.Email)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}

	httpx.WriteSuccess(w, http.StatusOK, authsdk.TokenPair{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// HandleForgotPassword handles POST /v1/auth/forgot-password
//
//	@Summary		Request a password reset link
//	@Description	Always answers with the same message whether or not the account exists.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.EmailRequest	true	"Account email"
//	@Success		200		{object}	authsdk.Envelope[string]
//	@Failure		429		{object}	authsdk.ErrorResponse	"Rate limited"
//	@Router			/v1/auth/forgot-password [post].
func (h *AuthHandler) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest[authsdk.EmailRequest](w, r)
	if !ok {
		return
	}

	msg, err := h.Accounts.ForgotPassword(r.Context(), req.Email)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, msg)
}

// HandleResetPassword handles POST /v1/auth/reset-password?token=...
//
//	@Summary		Reset password with an emailed token
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			token	query		string							true	"Reset token from the email link"
//	@Param			request	body		authsdk.ResetPasswordRequest	true	"New password"
//	@Success		200		{object}	authsdk.Envelope[string]
//	@Failure		400		{object}	authsdk.ErrorResponse	"Token invalid or expired, or passwords differ"
//	@Router			/v1/auth/reset-password [post].
func (h *AuthHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		authsdk.NewValidationError(map[string]string{"token": "required"}).WriteError(w)
		return
	}

	req, ok := decodeRequest[authsdk.ResetPasswordRequest](w, r)
	if !ok {
		return
	}

	msg, err := h.Accounts.ResetPassword(r.Context(), token, req.Password, req.ConfirmPassword)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, msg)
}

// HandleLogout handles DELETE /v1/auth/logout
//
//	@Summary		Logout
//	@Description	Revokes the presented refresh token.
//	@Tags			Auth
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.Envelope[string]
//	@Failure		401	{object}	authsdk.ErrorResponse	"Missing or revoked refresh token"
//	@Router			/v1/auth/logout [delete].
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsOrReject(w, r)
	if !ok {
		return
	}

	if err := h.Sessions.Logout(r.Context(), h.Sessions.CorrelationID(claims)); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, service.MsgLoggedOut)
}
