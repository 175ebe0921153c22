package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jmgilman/oceanctl/internal/model"
)

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, req model.LoginRequest) (*model.LoginResponse, error) {
	var resp model.LoginResponse
	if err := c.do(ctx, request{method: http.MethodPost, path: "auth/login", body: req}, &resp); err != nil {
		return nil, err
	}
	if resp.Token == "" {
		return nil, fmt.Errorf("%w: login response carried no token", ErrServer)
	}
	return &resp, nil
}

// CurrentUser returns the account the bearer token belongs to.
func (c *Client) CurrentUser(ctx context.Context) (*model.User, error) {
	var u model.User
	if err := c.do(ctx, request{method: http.MethodGet, path: "users/me"}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}
