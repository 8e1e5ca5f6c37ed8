package app

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"maintenance_scheduler/internal/domain/client"
	"maintenance_scheduler/internal/domain/ledger"
)

var ErrAdminNotAuthorized = errors.New("performing user is not authorized as an admin")

// Runner starts a scheduling pass.
type Runner interface {
	Run(ctx context.Context, opts RunOptions) (*RunReport, error)
}

// ClientStatus pairs a client with its ledger record, if any.
type ClientStatus struct {
	Client *client.Client
	Record *ledger.Record
}

// OpsService backs the operator chat commands.
type OpsService struct {
	clients         client.Repository
	ledger          ledger.Repository
	runner          Runner
	adminTelegramID int64
}

func NewOpsService(cr client.Repository, lr ledger.Repository, runner Runner, adminID int64) *OpsService {
	return &OpsService{
		clients:         cr,
		ledger:          lr,
		runner:          runner,
		adminTelegramID: adminID,
	}
}

// Status lists every configured client with its last recorded notification.
func (s *OpsService) Status(ctx context.Context, performingAdminID int64) ([]ClientStatus, error) {
	if performingAdminID != s.adminTelegramID {
		return nil, ErrAdminNotAuthorized
	}

	all, err := s.clients.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	records, err := s.ledger.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger records: %w", err)
	}

	out := make([]ClientStatus, 0, len(all))
	for _, c := range all {
		st := ClientStatus{Client: c}
		if rec, ok := records[c.ID]; ok {
			st.Record = &rec
		}
		out = append(out, st)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Client.ID < out[j].Client.ID })
	return out, nil
}

// TriggerRun starts a full pass on behalf of the admin.
func (s *OpsService) TriggerRun(ctx context.Context, performingAdminID int64, preview bool) (*RunReport, error) {
	if performingAdminID != s.adminTelegramID {
		return nil, ErrAdminNotAuthorized
	}
	return s.runner.Run(ctx, RunOptions{Preview: preview})
}
