// Package store persists optimistic-run results for later aggregation.
package store

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/solventlabs/liquidator"
)

// OptimisticResult is the persisted row, one per attempt.
type OptimisticResult struct {
	ID            uint   `gorm:"primaryKey"`
	Account       string `gorm:"index"`
	CreditManager string `gorm:"index"`
	Strategy      string
	Passed        bool
	Error         string
	GasUsed       uint64
	CallCount     int
	TraceRef      string
	CreatedAt     int64
}

type OptimisticStore struct {
	db *gorm.DB
}

func NewOptimisticStore(db *gorm.DB) (*OptimisticStore, error) {
	if err := db.AutoMigrate(&OptimisticResult{}); err != nil {
		return nil, errors.Wrap(err, "migrate optimistic results")
	}
	return &OptimisticStore{db: db}, nil
}

func (s *OptimisticStore) SaveOutcome(ctx context.Context, rec *liquidator.OptimisticRecord) error {
	row := &OptimisticResult{
		Account:       rec.Account.Hex(),
		CreditManager: rec.CreditManager.Hex(),
		Strategy:      rec.Strategy,
		Passed:        rec.Passed,
		Error:         rec.Error,
		GasUsed:       rec.GasUsed,
		CallCount:     rec.CallCount,
		TraceRef:      rec.TraceRef,
		CreatedAt:     rec.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return errors.Wrap(err, "insert optimistic result")
	}
	return nil
}

// Summary aggregates one optimistic run for reporting.
type Summary struct {
	Total  int64
	Passed int64
}

func (s *OptimisticStore) Summarize(ctx context.Context, since int64) (*Summary, error) {
	var out Summary
	if err := s.db.WithContext(ctx).Model(&OptimisticResult{}).
		Where("created_at >= ?", since).
		Count(&out.Total).Error; err != nil {
		return nil, errors.Wrap(err, "count results")
	}
	if err := s.db.WithContext(ctx).Model(&OptimisticResult{}).
		Where("created_at >= ? AND passed = ?", since, true).
		Count(&out.Passed).Error; err != nil {
		return nil, errors.Wrap(err, "count passed results")
	}
	return &out, nil
}

var _ liquidator.OutcomeStore = (*OptimisticStore)(nil)
