package repository

import (
	"context"
	"fmt"

	"conveniencia/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProductRepository interface {
	Create(ctx context.Context, product *models.Product) error
	GetByID(ctx context.Context, id string) (*models.Product, error)
	GetByIDs(ctx context.Context, ids []string) (map[string]*models.Product, error)
	GetByName(ctx context.Context, name string) (*models.Product, error)
	List(ctx context.Context) ([]models.Product, error)
	Update(ctx context.Context, product *models.Product) error
	SetAvailable(ctx context.Context, id string, available bool) error

	EnsureCategory(ctx context.Context, category *models.Category) error
	ListCategories(ctx context.Context) ([]models.Category, error)
}

type productRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) Create(ctx context.Context, product *models.Product) error {
	return translate(r.db.WithContext(ctx).Create(product).Error)
}

func (r *productRepository) GetByID(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).First(&product, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &product, nil
}

func (r *productRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*models.Product, error) {
	found := make(map[string]*models.Product, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	var products []models.Product
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, err
	}
	for i := range products {
		found[products[i].ID] = &products[i]
	}
	return found, nil
}

func (r *productRepository) GetByName(ctx context.Context, name string) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).Where("name = ?", name).Order("created_at").First(&product).Error
	if err != nil {
		return nil, translate(err)
	}
	return &product, nil
}

func (r *productRepository) List(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := r.db.WithContext(ctx).Order("name").Find(&products).Error
	return products, err
}

func (r *productRepository) Update(ctx context.Context, product *models.Product) error {
	result := r.db.WithContext(ctx).Model(product).Select(
		"name", "price", "category_id", "available", "preparation_time",
		"description", "ingredients", "image_url",
	).Updates(product)
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *productRepository) SetAvailable(ctx context.Context, id string, available bool) error {
	result := r.db.WithContext(ctx).Model(&models.Product{}).Where("id = ?", id).Update("available", available)
	if result.Error != nil {
		return fmt.Errorf("failed to update availability: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// EnsureCategory inserts the category unless one with the same id exists.
func (r *productRepository) EnsureCategory(ctx context.Context, category *models.Category) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(category).Error
}

func (r *productRepository) ListCategories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	err := r.db.WithContext(ctx).Order("name").Find(&categories).Error
	return categories, err
}
