package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"maintenance_scheduler/internal/domain/client"

	"github.com/go-playground/validator/v10"
)

var ErrClientNotFound = errors.New("client not found")

type clientsFile struct {
	Clients []*client.Client `json:"clients"`
}

// JSONClientRepository serves clients loaded once from a clients file.
type JSONClientRepository struct {
	clients []*client.Client
}

// LoadClients reads, defaults and validates the clients file.
func LoadClients(path string) (*JSONClientRepository, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read clients file %s: %w", path, err)
	}
	return ParseClients(raw)
}

// ParseClients builds a repository from the clients file contents.
func ParseClients(raw []byte) (*JSONClientRepository, error) {
	var f clientsFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("malformed clients file: %w", err)
	}

	validate := validator.New()
	seen := make(map[string]struct{}, len(f.Clients))
	for i, c := range f.Clients {
		if c == nil {
			return nil, fmt.Errorf("client #%d is null", i)
		}
		c.ApplyDefaults()
		if err := validate.Struct(c); err != nil {
			return nil, fmt.Errorf("client #%d (%s) is invalid: %w", i, c.ID, err)
		}
		if _, dup := seen[c.ID]; dup {
			return nil, fmt.Errorf("duplicate client id %q", c.ID)
		}
		seen[c.ID] = struct{}{}
	}
	return &JSONClientRepository{clients: f.Clients}, nil
}

func (r *JSONClientRepository) ListAll(_ context.Context) ([]*client.Client, error) {
	return append([]*client.Client(nil), r.clients...), nil
}

// ListActive keeps file order, which is what client indexes refer to.
func (r *JSONClientRepository) ListActive(_ context.Context) ([]*client.Client, error) {
	var out []*client.Client
	for _, c := range r.clients {
		if c.IsActive() {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *JSONClientRepository) GetByID(_ context.Context, id string) (*client.Client, error) {
	for _, c := range r.clients {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, ErrClientNotFound
}
