package apiclient

import (
	"context"
	"encoding/json"
	"net/http"

	"attendclient/internal/model"
)

// Session is what the server hands back after login or an auth check.
// Token is empty when the server only sets a cookie.
type Session struct {
	User  model.User
	Token string
}

// Login authenticates with a user identifier (student or staff id) and PIN.
func (c *Client) Login(ctx context.Context, userIdentifier, pin string) (*Session, error) {
	env, err := c.sendJSON(ctx, http.MethodPost, "/login", map[string]string{
		"userIdentifier": userIdentifier,
		"pin":            pin,
	})
	if err != nil {
		return nil, err
	}
	sess, err := decodeSession("POST /login", env)
	if err != nil {
		return nil, err
	}
	if sess.Token != "" {
		c.SetToken(sess.Token)
	}
	return sess, nil
}

// AuthCheck returns the current server-side session, or an Unauthorized error.
func (c *Client) AuthCheck(ctx context.Context) (*Session, error) {
	env, err := c.getJSON(ctx, "/auth-check")
	if err != nil {
		return nil, err
	}
	return decodeSession("GET /auth-check", env)
}

// Logout ends the server session and forgets the bearer token.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.sendJSON(ctx, http.MethodPost, "/logout", nil)
	c.SetToken("")
	return err
}

func decodeSession(op string, env *envelope) (*Session, error) {
	// Accepted shapes: {user, token}, {data: {user, token}}, {data: user}.
	var wrapped struct {
		User  *wireUser `json:"user"`
		Token string    `json:"token"`
	}
	if err := json.Unmarshal(env.Data, &wrapped); err != nil {
		return nil, &Error{Op: op, Err: err}
	}
	var u wireUser
	if wrapped.User != nil {
		u = *wrapped.User
	} else if err := json.Unmarshal(env.Data, &u); err != nil {
		return nil, &Error{Op: op, Err: err}
	}
	user := u.toModel()
	if user.ID == "" && user.UserIdentifier == "" {
		return nil, &Error{Op: op, Status: http.StatusUnauthorized, Message: "Invalid response from server"}
	}
	return &Session{User: user, Token: wrapped.Token}, nil
}
