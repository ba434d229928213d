/*
Package authsdk is the Go client and wire types for the gatekeeper gateway.

# SDKClient vs Session

  - SDKClient: unauthenticated operations (login, registration, emailed links)
  - Session: operations that need an access token, with one automatic
    refresh-and-retry when the access token is rejected

	client := authsdk.NewSDKClient("https://auth.example.com")

	session, err := client.Authenticate(ctx, "a@example.com", "password", nil)
	if errors.Is(err, authsdk.ErrOTPRequired) {
		session, err = client.Authenticate(ctx, "a@example.com", "password", promptForCode)
	}

	profile, err := session.Profile(ctx)

# Refresh tokens

Refresh tokens are single-use. Every successful Refresh replaces both tokens
held by the Session; presenting an already rotated refresh token fails with
401. Sessions serialise rotation so concurrent callers never replay a token.

# Errors

Non-2xx responses are returned as *APIError carrying the status code and the
server message. StatusCode(err) extracts the status from any error.

# Thread Safety

Sessions are safe for concurrent use.
*/
package authsdk
