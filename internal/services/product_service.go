package services

import (
	"context"
	"errors"
	"log"
	"strings"

	"conveniencia/internal/models"
	"conveniencia/internal/relay"
	"conveniencia/internal/repository"

	"github.com/shopspring/decimal"
)

type ProductInput struct {
	Name            string          `json:"nome" binding:"required"`
	Price           decimal.Decimal `json:"preco"`
	CategoryID      string          `json:"categoria_id"`
	CategoryName    string          `json:"categoria_nome"`
	Available       *bool           `json:"disponivel"`
	PreparationTime int             `json:"tempo_preparo"`
	Description     string          `json:"descricao"`
	Ingredients     []string        `json:"ingredientes"`
	ImageURL        string          `json:"imagem_url"`
}

type ProductService interface {
	ListProducts(ctx context.Context) ([]models.Product, error)
	ListCategories(ctx context.Context) ([]models.Category, error)
	CreateProduct(ctx context.Context, input ProductInput) (*models.Product, error)
	UpdateProduct(ctx context.Context, id string, input ProductInput) (*models.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	EnsureGenericProduct(ctx context.Context) (*models.Product, error)
}

type productService struct {
	productRepo repository.ProductRepository
	notifier    Notifier
}

func NewProductService(productRepo repository.ProductRepository, notifier Notifier) ProductService {
	return &productService{productRepo: productRepo, notifier: notifier}
}

func (s *productService) ListProducts(ctx context.Context) ([]models.Product, error) {
	return s.productRepo.List(ctx)
}

func (s *productService) ListCategories(ctx context.Context) ([]models.Category, error) {
	return s.productRepo.ListCategories(ctx)
}

func (s *productService) CreateProduct(ctx context.Context, input ProductInput) (*models.Product, error) {
	if err := validateProduct(input); err != nil {
		return nil, err
	}
	if err := s.ensureCategory(ctx, input); err != nil {
		return nil, err
	}

	product := &models.Product{Available: true}
	applyProductInput(product, input)
	if err := s.productRepo.Create(ctx, product); err != nil {
		return nil, gatewayError(err, nil, "create product")
	}
	s.notifier.Broadcast(ctx, relay.CatalogChanged, product)
	return product, nil
}

func (s *productService) UpdateProduct(ctx context.Context, id string, input ProductInput) (*models.Product, error) {
	if err := validateProduct(input); err != nil {
		return nil, err
	}
	product, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		return nil, gatewayError(err, ErrProductNotFound, "get product")
	}
	if err := s.ensureCategory(ctx, input); err != nil {
		return nil, err
	}

	applyProductInput(product, input)
	if err := s.productRepo.Update(ctx, product); err != nil {
		return nil, gatewayError(err, ErrProductNotFound, "update product")
	}
	s.notifier.Broadcast(ctx, relay.CatalogChanged, product)
	return product, nil
}

// DeleteProduct only hides the product; existing lines keep pointing at it.
func (s *productService) DeleteProduct(ctx context.Context, id string) error {
	if err := s.productRepo.SetAvailable(ctx, id, false); err != nil {
		return gatewayError(err, ErrProductNotFound, "delete product")
	}
	s.notifier.Broadcast(ctx, relay.CatalogChanged, map[string]string{"produto_id": id})
	return nil
}

// EnsureGenericProduct returns the "Diversos" product, creating it on first use.
func (s *productService) EnsureGenericProduct(ctx context.Context) (*models.Product, error) {
	product, err := s.productRepo.GetByName(ctx, models.GenericProductName)
	if err == nil {
		return product, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, gatewayError(err, nil, "find generic product")
	}

	product = &models.Product{
		Name:        models.GenericProductName,
		Price:       decimal.Zero,
		Available:   true,
		Description: "Itens diversos lançados com nome e preço livres",
	}
	if err := s.productRepo.Create(ctx, product); err != nil {
		return nil, gatewayError(err, nil, "create generic product")
	}
	log.Printf("Created generic product %s", product.ID)
	return product, nil
}

// ensureCategory creates an unknown category so the product never points at
// a missing row.
func (s *productService) ensureCategory(ctx context.Context, input ProductInput) error {
	if input.CategoryID == "" {
		return nil
	}
	name := strings.TrimSpace(input.CategoryName)
	if name == "" {
		name = "Categoria " + input.CategoryID
	}
	err := s.productRepo.EnsureCategory(ctx, &models.Category{ID: input.CategoryID, Name: name, Active: true})
	return gatewayError(err, nil, "ensure category")
}

func validateProduct(input ProductInput) error {
	if strings.TrimSpace(input.Name) == "" {
		return validationError("name is required")
	}
	if input.Price.IsNegative() {
		return validationError("price must not be negative")
	}
	if input.PreparationTime < 0 {
		return validationError("preparation time must not be negative")
	}
	return nil
}

func applyProductInput(p *models.Product, input ProductInput) {
	p.Name = strings.TrimSpace(input.Name)
	p.Price = input.Price
	p.CategoryID = input.CategoryID
	p.PreparationTime = input.PreparationTime
	p.Description = input.Description
	p.Ingredients = input.Ingredients
	p.ImageURL = input.ImageURL
	if input.Available != nil {
		p.Available = *input.Available
	}
}
