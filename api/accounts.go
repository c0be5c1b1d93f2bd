// SPDX-License-Identifier: MPL-2.0

package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"lance/config"
)

// AuthorizeURL is the browser entry point of the OAuth code flow.
func (e Environment) AuthorizeURL(redirectURI, state string) string {
	query := url.Values{}
	query.Set("client_id", e.OAuthClientID)
	query.Set("redirect_uri", redirectURI)
	query.Set("response_type", "code")
	query.Set("scope", "")
	query.Set("state", state)
	return e.AccountsURL("/oauth/authorize", false) + "?" + query.Encode()
}

// ExchangeCode trades an authorization code for an access token.
func (c *Client) ExchangeCode(ctx context.Context, clientSecret, code, redirectURI string) (*config.Token, error) {
	var tok config.Token
	err := c.DoJSON(ctx, Request{
		Method: http.MethodPost,
		URL:    c.env.AccountsURL("/oauth/token", false),
		JSON: map[string]string{
			"client_id":     c.env.OAuthClientID,
			"client_secret": clientSecret,
			"code":          code,
			"grant_type":    "authorization_code",
			"redirect_uri":  redirectURI,
		},
	}, false, &tok)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}
	return &tok, nil
}

func (c *Client) User(ctx context.Context) (*User, error) {
	var user User
	if err := c.DoJSON(ctx, Request{URL: c.env.AccountsURL("/user", true)}, true, &user); err != nil {
		return nil, fmt.Errorf("failed to load user profile: %w", err)
	}
	return &user, nil
}

// Ping checks that the accounts service answers with "pong".
func (c *Client) Ping(ctx context.Context) error {
	var payload struct {
		Message string `json:"message"`
	}
	if err := c.DoJSON(ctx, Request{URL: c.env.AccountsURL("/public/ping", true)}, false, &payload); err != nil {
		return err
	}
	if payload.Message != "pong" {
		return fmt.Errorf("unexpected ping response %q", payload.Message)
	}
	return nil
}
