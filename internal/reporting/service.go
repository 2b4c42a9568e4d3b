package reporting

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// RepositoryPort describes the aggregation queries used by Service.
type RepositoryPort interface {
	ValuationByBranch(ctx context.Context, branchID int64) (ValuationReport, error)
	ValuationByCategory(ctx context.Context, branchID int64) ([]CategoryValuationRow, error)
	MovementSummary(ctx context.Context, branchID int64, period Range) ([]MovementSummaryRow, error)
	WasteByReason(ctx context.Context, branchID int64, period Range) ([]WasteReasonRow, error)
}

// Service builds reporting projections with a versioned cache in front.
type Service struct {
	logger *slog.Logger
	repo   RepositoryPort
	cache  *Cache
}

// NewService constructs the reporting service.
func NewService(logger *slog.Logger, repo RepositoryPort, cache *Cache) *Service {
	return &Service{logger: logger, repo: repo, cache: cache}
}

// Valuation serves the per-branch valuation, cache first.
func (s *Service) Valuation(ctx context.Context, branchID int64) (ValuationReport, error) {
	if branchID == 0 {
		return ValuationReport{}, fmt.Errorf("%w: branch required", ErrValidation)
	}
	var cached ValuationReport
	if hit, err := s.cache.Get(ctx, branchID, "valuation", &cached); err != nil {
		s.logger.Warn("reporting cache read", slog.Any("error", err))
	} else if hit {
		return cached, nil
	}
	report, err := s.repo.ValuationByBranch(ctx, branchID)
	if err != nil {
		return ValuationReport{}, err
	}
	if err := s.cache.Set(ctx, branchID, "valuation", report); err != nil {
		s.logger.Warn("reporting cache write", slog.Any("error", err))
	}
	return report, nil
}

// CategoryValuation serves stock value grouped by category.
func (s *Service) CategoryValuation(ctx context.Context, branchID int64) ([]CategoryValuationRow, error) {
	if branchID == 0 {
		return nil, fmt.Errorf("%w: branch required", ErrValidation)
	}
	var cached []CategoryValuationRow
	if hit, err := s.cache.Get(ctx, branchID, "valuation:categories", &cached); err != nil {
		s.logger.Warn("reporting cache read", slog.Any("error", err))
	} else if hit {
		return cached, nil
	}
	rows, err := s.repo.ValuationByCategory(ctx, branchID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, branchID, "valuation:categories", rows); err != nil {
		s.logger.Warn("reporting cache write", slog.Any("error", err))
	}
	return rows, nil
}

// MovementSummary aggregates movements per kind over the range. Range-bound
// reports are not cached; the parameter space is unbounded.
func (s *Service) MovementSummary(ctx context.Context, branchID int64, period Range) ([]MovementSummaryRow, error) {
	if branchID == 0 {
		return nil, fmt.Errorf("%w: branch required", ErrValidation)
	}
	if period.To.Before(period.From) {
		return nil, fmt.Errorf("%w: range end before start", ErrValidation)
	}
	return s.repo.MovementSummary(ctx, branchID, period)
}

// WasteByReason aggregates write-offs per reason over the range.
func (s *Service) WasteByReason(ctx context.Context, branchID int64, period Range) ([]WasteReasonRow, error) {
	if branchID == 0 {
		return nil, fmt.Errorf("%w: branch required", ErrValidation)
	}
	if period.To.Before(period.From) {
		return nil, fmt.Errorf("%w: range end before start", ErrValidation)
	}
	return s.repo.WasteByReason(ctx, branchID, period)
}

// BuildOverview fans the four projections out concurrently and assembles
// the dashboard bundle.
func (s *Service) BuildOverview(ctx context.Context, branchID int64, period Range) (Overview, error) {
	if branchID == 0 {
		return Overview{}, fmt.Errorf("%w: branch required", ErrValidation)
	}

	var overview Overview
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		report, err := s.Valuation(ctx, branchID)
		if err != nil {
			return err
		}
		overview.Valuation = report
		return nil
	})
	g.Go(func() error {
		rows, err := s.CategoryValuation(ctx, branchID)
		if err != nil {
			return err
		}
		overview.Categories = rows
		return nil
	})
	g.Go(func() error {
		rows, err := s.MovementSummary(ctx, branchID, period)
		if err != nil {
			return err
		}
		overview.Movements = rows
		return nil
	})
	g.Go(func() error {
		rows, err := s.WasteByReason(ctx, branchID, period)
		if err != nil {
			return err
		}
		overview.Waste = rows
		return nil
	})

	if err := g.Wait(); err != nil {
		return Overview{}, err
	}
	return overview, nil
}

// WarmCaches primes the valuation caches for the given branches. Used by
// the background warmup job.
func (s *Service) WarmCaches(ctx context.Context, branchIDs []int64) error {
	for _, branchID := range branchIDs {
		if _, err := s.Valuation(ctx, branchID); err != nil {
			return err
		}
		if _, err := s.CategoryValuation(ctx, branchID); err != nil {
			return err
		}
	}
	return nil
}
