package remote

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/dejobratic/orderflow/internal/orders/ports"
)

// AccountDirectory resolves accounts through the user service.
type AccountDirectory struct {
	client client
}

func NewAccountDirectory(baseURL, serviceToken string, timeout time.Duration) *AccountDirectory {
	return &AccountDirectory{client: newClient(baseURL, serviceToken, timeout)}
}

type accountResponse struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Email       string   `json:"email"`
	Permissions []string `json:"permissions"`
	Enabled     bool     `json:"enabled"`
}

func (d *AccountDirectory) Lookup(ctx context.Context, accountID string) (*ports.Account, error) {
	var resp accountResponse
	if err := d.client.getJSON(ctx, "/users/"+escape(accountID), &resp); err != nil {
		if errors.Is(err, errNotFound) {
			return nil, ports.ErrAccountNotFound
		}
		return nil, err
	}
	if !resp.Enabled {
		return nil, ports.ErrAccountNotFound
	}

	role := "customer"
	if slices.Contains(resp.Permissions, "admin") {
		role = "admin"
	}
	return &ports.Account{ID: resp.ID, Name: resp.Name, Email: resp.Email, Role: role}, nil
}
