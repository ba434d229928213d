package authsdk

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	requiredReason    = "required"
	minPasswordLength = 6
)

var reOTP = regexp.MustCompile(`^[0-9]{6}$`)

func validateEmail(errs map[string]string, field, value string) {
	value = strings.TrimSpace(value)
	switch {
	case value == "":
		errs[field] = requiredReason
	case len(value) > 254:
		errs[field] = "too long (max 254)"
	default:
		addr, err := mail.ParseAddress(value)
		if err != nil || addr.Address != value {
			errs[field] = "must be a valid email address"
		}
	}
}

func validatePassword(errs map[string]string, field, value string) {
	switch {
	case strings.TrimSpace(value) == "":
		errs[field] = requiredReason
	case utf8.RuneCountInString(value) < minPasswordLength:
		errs[field] = "must be at least 6 characters"
	case len(value) > 128:
		errs[field] = "too long (max 128)"
	}
}

func validateLength(errs map[string]string, field, value string, minLen, maxLen int) {
	n := utf8.RuneCountInString(strings.TrimSpace(value))
	switch {
	case n == 0:
		errs[field] = requiredReason
	case n < minLen || n > maxLen:
		errs[field] = fmt.Sprintf("must be %d-%d characters", minLen, maxLen)
	}
}

func result(errs map[string]string) map[string]string {
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// Validate checks if the login fields are valid.
// Returns a map of field names to error messages, or nil if all fields are valid.
func (r LoginRequest) Validate() map[string]string {
	errs := make(map[string]string)
	validateEmail(errs, "email", r.Email)
	if strings.TrimSpace(r.Password) == "" {
		errs["password"] = requiredReason
	}
	return result(errs)
}

func (r OTPRequest) Validate() map[string]string {
	if !reOTP.MatchString(r.Code) {
		return map[string]string{"code": "must be exactly 6 digits"}
	}
	return nil
}

func (r EmailRequest) Validate() map[string]string {
	errs := make(map[string]string)
	validateEmail(errs, "email", r.Email)
	return result(errs)
}

func (r ResetPasswordRequest) Validate() map[string]string {
	errs := make(map[string]string)
	validatePassword(errs, "password", r.Password)
	if r.ConfirmPassword == "" {
		errs["confirmPassword"] = requiredReason
	}
	return result(errs)
}

func (r RegisterRequest) Validate() map[string]string {
	errs := make(map[string]string)
	validateLength(errs, "firstName", r.FirstName, 2, 50)
	validateLength(errs, "lastName", r.LastName, 1, 50)
	validateEmail(errs, "email", r.Email)
	validatePassword(errs, "password", r.Password)
	if r.ConfirmPassword == "" {
		errs["confirmPassword"] = requiredReason
	}
	return result(errs)
}
