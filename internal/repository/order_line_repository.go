package repository

import (
	"context"
	"fmt"

	"conveniencia/internal/models"

	"gorm.io/gorm"
)

type OrderLineRepository interface {
	CreateBatch(ctx context.Context, lines []*models.OrderLine) error
	GetByID(ctx context.Context, id string) (*models.OrderLine, error)
	ListByTab(ctx context.Context, tabID string) ([]models.OrderLine, error)
	ListActive(ctx context.Context) ([]models.OrderLine, error)
	UpdateStatus(ctx context.Context, id string, fields map[string]interface{}) error
	Delete(ctx context.Context, id string) error
}

type orderLineRepository struct {
	db *gorm.DB
}

func NewOrderLineRepository(db *gorm.DB) OrderLineRepository {
	return &orderLineRepository{db: db}
}

func (r *orderLineRepository) CreateBatch(ctx context.Context, lines []*models.OrderLine) error {
	if len(lines) == 0 {
		return nil
	}
	// Omit the association so a preloaded product is never upserted.
	return translate(r.db.WithContext(ctx).Omit("Product").Create(lines).Error)
}

func (r *orderLineRepository) GetByID(ctx context.Context, id string) (*models.OrderLine, error) {
	var line models.OrderLine
	err := r.db.WithContext(ctx).Preload("Product").First(&line, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &line, nil
}

// ListByTab returns every line of the tab in entry order.
func (r *orderLineRepository) ListByTab(ctx context.Context, tabID string) ([]models.OrderLine, error) {
	var lines []models.OrderLine
	err := r.db.WithContext(ctx).Preload("Product").
		Where("tab_id = ?", tabID).
		Order("ordered_at ASC").
		Find(&lines).Error
	return lines, err
}

// ListActive returns the non-delivered lines of open tabs.
func (r *orderLineRepository) ListActive(ctx context.Context) ([]models.OrderLine, error) {
	var lines []models.OrderLine
	err := r.db.WithContext(ctx).Preload("Product").
		Joins("JOIN tabs ON tabs.id = order_lines.tab_id AND tabs.status = ?", models.TabOpen).
		Where("order_lines.status IS NULL OR order_lines.status <> ?", models.LineDelivered).
		Order("order_lines.ordered_at ASC").
		Find(&lines).Error
	return lines, err
}

func (r *orderLineRepository) UpdateStatus(ctx context.Context, id string, fields map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&models.OrderLine{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return fmt.Errorf("failed to update order line: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *orderLineRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.OrderLine{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete order line: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
