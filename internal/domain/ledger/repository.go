// internal/domain/ledger/repository.go
package ledger

import "context"

// Repository persists the notification ledger, keyed by client id.
type Repository interface {
	Get(ctx context.Context, clientID string) (*Record, error)
	List(ctx context.Context) (map[string]Record, error)
	// Upsert replaces the record for clientID.
	Upsert(ctx context.Context, clientID string, rec Record) error
}
