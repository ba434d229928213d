package http

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/gatekeeper/internal/gateway/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/gateway/service"
	"github.com/aussiebroadwan/gatekeeper/pkg/authsdk"
	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
)

// UsersHandler serves /v1/users.
type UsersHandler struct {
	Accounts *service.AccountService
}

func toProfile(p domain.Profile) authsdk.UserProfile {
	return authsdk.UserProfile{
		ID:               p.ID,
		FirstName:        p.FirstName,
		LastName:         p.LastName,
		Email:            p.Email,
		Verified:         p.Verified,
		TwoFactorEnabled: p.TwoFactorEnabled,
		CreatedAt:        p.CreatedAt,
	}
}

// HandleRegister handles POST /v1/users/register
//
//	@Summary		Register an account
//	@Description	Creates an unverified account and emails a verification link valid for 5 minutes.
//	@Tags			Users
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.RegisterRequest	true	"New account"
//	@Success		201		{object}	authsdk.Envelope[authsdk.UserProfile]
//	@Failure		400		{object}	authsdk.ErrorResponse	"Validation failed, email taken or passwords differ"
//	@Router			/v1/users/register [post].
func (h *UsersHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest[authsdk.RegisterRequest](w, r)
	if !ok {
		return
	}

	profile, err := h.Accounts.Register(r.Context(), service.RegisterInput{
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}

	httpx.WriteSuccess(w, http.StatusCreated, toProfile(profile))
}

// HandleVerifyEmail handles GET /v1/users/verify-email?token=...
//
//	@Summary		Verify email address
//	@Tags			Users
//	@Produce		json
//	@Param			token	query		string	true	"Verification token from the email link"
//	@Success		200		{object}	authsdk.Envelope[string]
//	@Failure		400		{object}	authsdk.ErrorResponse	"Token invalid or expired"
//	@Failure		404		{object}	authsdk.ErrorResponse	"User no longer exists"
//	@Router			/v1/users/verify-email [get].
func (h *UsersHandler) HandleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		authsdk.NewValidationError(map[string]string{"token": "required"}).WriteError(w)
		return
	}

	msg, err := h.Accounts.VerifyEmail(r.Context(), token)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, msg)
}

// HandleResendVerification handles POST /v1/users/resend-email-verification
//
//	@Summary		Resend the verification link
//	@Description	Always answers with the same message whether or not a pending account exists.
//	@Tags			Users
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.EmailRequest	true	"Account email"
//	@Success		200		{object}	authsdk.Envelope[string]
//	@Router			/v1/users/resend-email-verification [post].
func (h *UsersHandler) HandleResendVerification(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest[authsdk.EmailRequest](w, r)
	if !ok {
		return
	}

	msg, err := h.Accounts.ResendVerification(r.Context(), req.Email)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, msg)
}

// HandleProfile handles GET /v1/users/me
//
//	@Summary		Current user
//	@Tags			Users
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.Envelope[authsdk.UserProfile]
//	@Failure		401	{object}	authsdk.ErrorResponse	"Invalid or missing access token"
//	@Failure		404	{object}	authsdk.ErrorResponse	"User no longer exists"
//	@Router			/v1/users/me [get].
func (h *UsersHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsOrReject(w, r)
	if !ok {
		return
	}

	profile, err := h.Accounts.Profile(r.Context(), claims.Email)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, toProfile(profile))
}

// HandleDelete handles DELETE /v1/users/me
//
//	@Summary		Delete account
//	@Tags			Users
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.Envelope[string]
//	@Failure		401	{object}	authsdk.ErrorResponse	"Invalid or missing access token"
//	@Failure		404	{object}	authsdk.ErrorResponse	"User no longer exists"
//	@Router			/v1/users/me [delete].
func (h *UsersHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsOrReject(w, r)
	if !ok {
		return
	}

	msg, err := h.Accounts.DeleteAccount(r.Context(), claims.Email)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, msg)
}
