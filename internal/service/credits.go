package service

import (
	"context"
	"fmt"

	"github.com/zhuermu/zmead-sub004/internal/domain/credit"
	"github.com/zhuermu/zmead-sub004/internal/port/ledger"
	"github.com/zhuermu/zmead-sub004/internal/port/statestore"
)

// CreditService surfaces the deduction journal and ledger balance for
// audit endpoints.
type CreditService struct {
	store  statestore.Store
	ledger ledger.Ledger
}

// NewCreditService creates a CreditService.
func NewCreditService(store statestore.Store, lg ledger.Ledger) *CreditService {
	return &CreditService{store: store, ledger: lg}
}

// Operations returns the session's journal entries, oldest first.
func (s *CreditService) Operations(ctx context.Context, sessionID string) ([]credit.Operation, error) {
	ops, err := s.store.ListOperations(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list operations %s: %w", sessionID, err)
	}
	return ops, nil
}

// Summary aggregates the session's journal.
func (s *CreditService) Summary(ctx context.Context, sessionID string) (credit.Summary, error) {
	ops, err := s.store.ListOperations(ctx, sessionID)
	if err != nil {
		return credit.Summary{}, fmt.Errorf("list operations %s: %w", sessionID, err)
	}
	return credit.Summarize(sessionID, ops), nil
}

// Balance returns the user's live ledger balance.
func (s *CreditService) Balance(ctx context.Context, userID string) (int64, error) {
	return s.ledger.Balance(ctx, userID)
}
