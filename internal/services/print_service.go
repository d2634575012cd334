package services

import (
	"context"
	"fmt"

	"conveniencia/internal/cache"
)

// PrintMarkers is where printed tabs are remembered.
type PrintMarkers interface {
	MarkPrinted(ctx context.Context, tabID string) error
	UnmarkPrinted(ctx context.Context, tabID string) error
	IsPrinted(ctx context.Context, tabID string) (bool, error)
	PrintedTabs(ctx context.Context) (map[string]bool, error)
}

type PrintService interface {
	MarkPrinted(ctx context.Context, tabID string) error
	UnmarkPrinted(ctx context.Context, tabID string) error
	IsPrinted(ctx context.Context, tabID string) (bool, error)
	PrintedTabs(ctx context.Context) (map[string]bool, error)
	UnprintedCount(ctx context.Context) (int, error)
}

type printService struct {
	markers PrintMarkers
	store   *cache.Store
}

func NewPrintService(markers PrintMarkers, store *cache.Store) PrintService {
	return &printService{markers: markers, store: store}
}

func (s *printService) MarkPrinted(ctx context.Context, tabID string) error {
	if tabID == "" {
		return validationError("tab id is required")
	}
	if err := s.markers.MarkPrinted(ctx, tabID); err != nil {
		return fmt.Errorf("failed to mark tab printed: %w", err)
	}
	return nil
}

func (s *printService) UnmarkPrinted(ctx context.Context, tabID string) error {
	if err := s.markers.UnmarkPrinted(ctx, tabID); err != nil {
		return fmt.Errorf("failed to unmark tab: %w", err)
	}
	return nil
}

func (s *printService) IsPrinted(ctx context.Context, tabID string) (bool, error) {
	if tabID == "" {
		return false, validationError("tab id is required")
	}
	printed, err := s.markers.IsPrinted(ctx, tabID)
	if err != nil {
		return false, fmt.Errorf("failed to check printed marker: %w", err)
	}
	return printed, nil
}

func (s *printService) PrintedTabs(ctx context.Context) (map[string]bool, error) {
	return s.markers.PrintedTabs(ctx)
}

// UnprintedCount counts open tabs that were never printed.
func (s *printService) UnprintedCount(ctx context.Context) (int, error) {
	printed, err := s.markers.PrintedTabs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get printed tabs: %w", err)
	}
	count := 0
	for _, tab := range s.store.Snapshot().Tabs {
		if !printed[tab.ID] {
			count++
		}
	}
	return count, nil
}
