package client

import "context"

// Repository loads the configured clients. Clients are immutable for a run.
type Repository interface {
	ListAll(ctx context.Context) ([]*Client, error)
	ListActive(ctx context.Context) ([]*Client, error)
	GetByID(ctx context.Context, id string) (*Client, error)
}
