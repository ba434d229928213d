package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/gatekeeper/internal/gateway/service"
	"github.com/aussiebroadwan/gatekeeper/pkg/authsdk"
	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

var categories = []struct {
	err    error
	status int
}{
	{service.ErrInvalidCredentials, http.StatusUnauthorized},
	{service.ErrUnverified, http.StatusForbidden},
	{service.ErrUnauthorized, http.StatusUnauthorized},
	{service.ErrNotFound, http.StatusNotFound},
	{service.ErrBadRequest, http.StatusBadRequest},
	{service.ErrTokenExpiredOrInvalid, http.StatusBadRequest},
}

// writeServiceError maps a service error onto the error envelope. Anything
// outside the known categories is logged and reported as a 500.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	for _, c := range categories {
		if errors.Is(err, c.err) {
			authsdk.NewAPIError(c.status, publicMessage(err, c.err)).WriteError(w)
			return
		}
	}

	log := slogx.FromContext(ctx)
	if errors.Is(err, service.ErrDecryptionFailed) {
		log.Error("stored secret could not be decrypted", "err", err)
	} else {
		log.Error("request failed", "err", err)
	}
	authsdk.ErrServerError.WriteError(w)
}

// publicMessage strips the category prefix added by "%w: detail" wrapping.
func publicMessage(err, category error) string {
	msg := err.Error()
	if detail, ok := strings.CutPrefix(msg, category.Error()+": "); ok {
		msg = detail
	}
	if msg == "" {
		return category.Error()
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}

type validatable interface {
	Validate() map[string]string
}

// decodeRequest decodes and validates a JSON body, writing a 400 on failure.
func decodeRequest[T validatable](w http.ResponseWriter, r *http.Request) (T, bool) {
	var req T
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		authsdk.NewAPIError(http.StatusBadRequest, err.Error()).WriteError(w)
		return req, false
	}
	if errs := req.Validate(); errs != nil {
		authsdk.NewValidationError(errs).WriteError(w)
		return req, false
	}
	return req, true
}
