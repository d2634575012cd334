package repository

import (
	"context"
	"fmt"
	"time"

	"conveniencia/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type TabRepository interface {
	Create(ctx context.Context, tab *models.Tab) error
	GetByID(ctx context.Context, id string) (*models.Tab, error)
	OpenNumberExists(ctx context.Context, number string) (bool, error)
	ListOpen(ctx context.Context) ([]models.Tab, error)
	ListClosed(ctx context.Context) ([]models.Tab, error)
	UpdateTotal(ctx context.Context, id string, total decimal.Decimal) error
	ApplyPayment(ctx context.Context, id string, total, paidAmount decimal.Decimal) error
	SetServiceCharge(ctx context.Context, id string, amount decimal.Decimal) error
	Close(ctx context.Context, id string) error
	DeleteWithLines(ctx context.Context, id string) error
}

type tabRepository struct {
	db *gorm.DB
}

func NewTabRepository(db *gorm.DB) TabRepository {
	return &tabRepository{db: db}
}

func (r *tabRepository) Create(ctx context.Context, tab *models.Tab) error {
	return translate(r.db.WithContext(ctx).Create(tab).Error)
}

func (r *tabRepository) GetByID(ctx context.Context, id string) (*models.Tab, error) {
	var tab models.Tab
	err := r.db.WithContext(ctx).First(&tab, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &tab, nil
}

func (r *tabRepository) OpenNumberExists(ctx context.Context, number string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Tab{}).
		Where("number = ? AND status = ?", number, models.TabOpen).
		Count(&count).Error
	return count > 0, err
}

func (r *tabRepository) ListOpen(ctx context.Context) ([]models.Tab, error) {
	return r.listByStatus(ctx, models.TabOpen, "created_at ASC")
}

func (r *tabRepository) ListClosed(ctx context.Context) ([]models.Tab, error) {
	return r.listByStatus(ctx, models.TabClosed, "updated_at DESC")
}

func (r *tabRepository) listByStatus(ctx context.Context, status models.TabStatus, order string) ([]models.Tab, error) {
	var tabs []models.Tab
	err := r.db.WithContext(ctx).Where("status = ?", status).Order(order).Find(&tabs).Error
	return tabs, err
}

func (r *tabRepository) UpdateTotal(ctx context.Context, id string, total decimal.Decimal) error {
	return r.update(ctx, id, map[string]interface{}{"total": total})
}

// ApplyPayment writes the new total and the cumulative paid amount in one
// statement so a reader never sees one without the other.
func (r *tabRepository) ApplyPayment(ctx context.Context, id string, total, paidAmount decimal.Decimal) error {
	return r.update(ctx, id, map[string]interface{}{
		"total":       total,
		"paid_amount": paidAmount,
	})
}

func (r *tabRepository) SetServiceCharge(ctx context.Context, id string, amount decimal.Decimal) error {
	return r.update(ctx, id, map[string]interface{}{"service_charge": amount})
}

func (r *tabRepository) update(ctx context.Context, id string, fields map[string]interface{}) error {
	fields["updated_at"] = time.Now()
	result := r.db.WithContext(ctx).Model(&models.Tab{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return fmt.Errorf("failed to update tab: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Close marks the tab closed and its lines delivered in one transaction.
// Closing an already closed tab is a no-op success.
func (r *tabRepository) Close(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		result := tx.Model(&models.Tab{}).Where("id = ?", id).
			Updates(map[string]interface{}{"status": models.TabClosed, "updated_at": now})
		if result.Error != nil {
			return fmt.Errorf("failed to close tab: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}

		err := tx.Model(&models.OrderLine{}).
			Where("tab_id = ? AND (status IS NULL OR status <> ?)", id, models.LineDelivered).
			Updates(map[string]interface{}{"status": models.LineDelivered, "delivered_at": now}).Error
		if err != nil {
			return fmt.Errorf("failed to deliver order lines: %w", err)
		}
		return nil
	})
}

// DeleteWithLines removes the lines first, then the tab.
func (r *tabRepository) DeleteWithLines(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("tab_id = ?", id).Delete(&models.OrderLine{}).Error; err != nil {
			return fmt.Errorf("failed to delete order lines: %w", err)
		}
		result := tx.Where("id = ?", id).Delete(&models.Tab{})
		if result.Error != nil {
			return fmt.Errorf("failed to delete tab: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}
