package api

import (
	"context"
	"net/http"

	"shopfront/internal/models"
)

type LoginResponse struct {
	AccessToken string      `json:"accessToken"`
	User        models.User `json:"user"`
}

// Login authenticates against the backend. The session cookie set by the
// server lands in the client's jar as a side channel for later refreshes.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	req := map[string]string{"email": email, "password": password}
	var resp LoginResponse
	if err := c.Do(ctx, http.MethodPost, loginPath, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.Do(ctx, http.MethodPost, "/auth/logout", nil, nil)
}

func (c *Client) Me(ctx context.Context) (*models.User, error) {
	var user models.User
	if err := c.Do(ctx, http.MethodGet, "/auth/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}
