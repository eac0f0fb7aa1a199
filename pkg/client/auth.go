package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/openshelf/shelfctl/pkg/library"
)

// userEnvelope wraps user payloads the way the API expects them.
type userEnvelope struct {
	User any `json:"user"`
}

// UserResult is the response to auth and user endpoints.
type UserResult struct {
	User    library.User `json:"user"`
	Message string       `json:"message,omitempty"`
}

// SignUp registers a new account. The bearer credential, if issued,
// arrives via the response Authorization header and token hook.
func (c *Client) SignUp(ctx context.Context, in library.SignUpInput) (*UserResult, error) {
	if err := library.ValidateSignUp(in); err != nil {
		return nil, err
	}

	var out UserResult
	if err := c.sendJSON(ctx, http.MethodPost, "/auth/sign_up", userEnvelope{User: in}, &out); err != nil {
		return nil, fmt.Errorf("signing up: %w", err)
	}

	return &out, nil
}

// SignIn authenticates and returns the signed-in user. The refreshed
// token is delivered through the token hook; callers that need it
// directly can use Do.
func (c *Client) SignIn(ctx context.Context, in library.SignInInput) (*UserResult, string, error) {
	if err := library.ValidateSignIn(in); err != nil {
		return nil, "", err
	}

	resp, err := c.Do(ctx, http.MethodPost, "/auth/sign_in", userEnvelope{User: in}, nil)
	if err != nil {
		return nil, "", fmt.Errorf("signing in: %w", err)
	}

	var out UserResult
	if err := decodeBody(resp.Body, &out); err != nil {
		return nil, "", err
	}

	return &out, resp.RefreshedToken, nil
}

// SignOut invalidates the current session server-side.
func (c *Client) SignOut(ctx context.Context) error {
	if err := c.sendJSON(ctx, http.MethodDelete, "/auth/sign_out", nil, nil); err != nil {
		return fmt.Errorf("signing out: %w", err)
	}

	return nil
}

// CurrentUser fetches the user the current credential belongs to.
// A 401 means the credential is invalid or expired.
func (c *Client) CurrentUser(ctx context.Context) (*library.User, error) {
	var out UserResult
	if err := c.getJSON(ctx, "/users/me", nil, &out); err != nil {
		return nil, fmt.Errorf("fetching current user: %w", err)
	}

	return &out.User, nil
}
