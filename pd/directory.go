package pd

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/lorepanichi/pdh/errors"
	"github.com/lorepanichi/pdh/record"
)

// ListUsers fetches every user visible to the API key.
func (c *Client) ListUsers(ctx context.Context) (record.Sequence, error) {
	return c.listPages(ctx, "/users", nil, "users")
}

// SearchUsers fetches the users matching a free-text query. The server
// matches against names and email addresses.
func (c *Client) SearchUsers(ctx context.Context, query string) (record.Sequence, error) {
	values := url.Values{}
	if query != "" {
		values.Set("query", query)
	}
	return c.listPages(ctx, "/users", values, "users")
}

// GetUser fetches one user by ID.
func (c *Client) GetUser(ctx context.Context, id string) (record.Record, error) {
	if id == "" {
		return nil, errors.WrapConfig(
			fmt.Errorf("empty user id"), "Client", "GetUser", "validate arguments")
	}
	var envelope struct {
		User record.Record `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/users/"+id, nil, nil, &envelope); err != nil {
		return nil, err
	}
	return envelope.User, nil
}

// Me fetches the user owning the API key.
func (c *Client) Me(ctx context.Context) (record.Record, error) {
	var envelope struct {
		User record.Record `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/users/me", nil, nil, &envelope); err != nil {
		return nil, err
	}
	return envelope.User, nil
}

// FindUserID resolves a name or email to a single user ID. An exact email
// or name match wins; otherwise the query must identify exactly one user.
func (c *Client) FindUserID(ctx context.Context, nameOrEmail string) (string, error) {
	users, err := c.SearchUsers(ctx, nameOrEmail)
	if err != nil {
		return "", err
	}
	if len(users) == 0 {
		return "", errors.WrapData(
			fmt.Errorf("%w: no user matching %q", errors.ErrNotFound, nameOrEmail),
			"Client", "FindUserID", "resolve user")
	}

	want := strings.ToLower(nameOrEmail)
	for _, user := range users {
		if strings.ToLower(record.StringAt(user, "email")) == want ||
			strings.ToLower(record.StringAt(user, "name")) == want {
			return record.ID(user), nil
		}
	}
	if len(users) == 1 {
		return record.ID(users[0]), nil
	}

	names := make([]string, 0, len(users))
	for _, user := range users {
		names = append(names, record.StringAt(user, "name"))
	}
	return "", errors.WrapConfig(
		fmt.Errorf("ambiguous user %q: matches %s", nameOrEmail, strings.Join(names, ", ")),
		"Client", "FindUserID", "resolve user")
}

// ListServices fetches every service.
func (c *Client) ListServices(ctx context.Context) (record.Sequence, error) {
	return c.listPages(ctx, "/services", nil, "services")
}

// ListTeams fetches every team.
func (c *Client) ListTeams(ctx context.Context) (record.Sequence, error) {
	return c.listPages(ctx, "/teams", nil, "teams")
}
