package cache

import (
	"context"
	"fmt"

	"conveniencia/internal/models"
	"conveniencia/internal/repository"
)

type repositorySource struct {
	tabs     repository.TabRepository
	lines    repository.OrderLineRepository
	products repository.ProductRepository
}

// NewRepositorySource reads the open set and the catalog from the database.
func NewRepositorySource(tabs repository.TabRepository, lines repository.OrderLineRepository, products repository.ProductRepository) Source {
	return &repositorySource{tabs: tabs, lines: lines, products: products}
}

func (s *repositorySource) LoadOpenSet(ctx context.Context) ([]models.Tab, []models.OrderLine, error) {
	tabs, err := s.tabs.ListOpen(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load open tabs: %w", err)
	}
	lines, err := s.lines.ListActive(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load active order lines: %w", err)
	}
	return tabs, lines, nil
}

func (s *repositorySource) LoadProducts(ctx context.Context) ([]models.Product, error) {
	products, err := s.products.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	return products, nil
}
