package remote

import (
	"context"
	"encoding/json"

	"github.com/roach88/reqsync/internal/model"
)

// Login verifies credentials and returns the account.
func (c *Client) Login(ctx context.Context, username, password string) (model.User, error) {
	const op = "login"
	body, err := c.post(ctx, op, struct {
		Action   string `json:"action"`
		Username string `json:"username"`
		Password string `json:"password"`
	}{op, username, password})
	if err != nil {
		return model.User{}, err
	}
	env, err := decodeEnvelope(op, body, "login failed")
	if err != nil {
		return model.User{}, err
	}
	if env.User == nil || env.User.IsZero() {
		return model.User{}, &Error{Kind: KindRejected, Op: op, Message: "login failed"}
	}
	return *env.User, nil
}

// GetUsers lists every account.
func (c *Client) GetUsers(ctx context.Context) ([]model.User, error) {
	const op = "getUsers"
	body, err := c.get(ctx, op, nil)
	if err != nil {
		return nil, err
	}
	raw, err := decodeList(op, body, func(env envelope) ([]byte, error) {
		return json.Marshal(env.Users)
	})
	if err != nil {
		return nil, err
	}
	var users []model.User
	if err := json.Unmarshal(raw, &users); err != nil {
		return nil, &Error{Kind: KindMalformed, Op: op, Err: err}
	}
	if users == nil {
		users = []model.User{}
	}
	return users, nil
}

type userRequest struct {
	Action   string     `json:"action"`
	Username string     `json:"username"`
	Password string     `json:"password,omitempty"`
	Name     string     `json:"name"`
	Role     model.Role `json:"role"`
}

// CreateUser adds an account.
func (c *Client) CreateUser(ctx context.Context, u model.User, password string) error {
	return c.simple(ctx, "createUser", userRequest{
		Action: "createUser", Username: u.Username, Password: password, Name: u.Name, Role: u.Role,
	})
}

// UpdateUser changes an account's name and role. An empty password leaves
// the stored password untouched.
func (c *Client) UpdateUser(ctx context.Context, u model.User, password string) error {
	return c.simple(ctx, "updateUser", userRequest{
		Action: "updateUser", Username: u.Username, Password: password, Name: u.Name, Role: u.Role,
	})
}

// DeleteUser removes an account.
func (c *Client) DeleteUser(ctx context.Context, username string) error {
	return c.simple(ctx, "deleteUser", struct {
		Action   string `json:"action"`
		Username string `json:"username"`
	}{"deleteUser", username})
}

// ChangePassword sets a new password. oldPassword may be empty when a
// manager resets someone else's password.
func (c *Client) ChangePassword(ctx context.Context, username, newPassword, oldPassword string) error {
	return c.simple(ctx, "changePassword", struct {
		Action      string `json:"action"`
		Username    string `json:"username"`
		NewPassword string `json:"newPassword"`
		OldPassword string `json:"oldPassword,omitempty"`
	}{"changePassword", username, newPassword, oldPassword})
}

func (c *Client) simple(ctx context.Context, op string, payload any) error {
	body, err := c.post(ctx, op, payload)
	if err != nil {
		return err
	}
	_, err = decodeEnvelope(op, body, op+" failed")
	return err
}
