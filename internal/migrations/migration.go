package migrations

import (
	"context"
	"errors"
	"fmt"
	"log"

	"conveniencia/internal/config"
	"conveniencia/internal/models"
	"conveniencia/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Seed creates the default categories, the generic "Diversos" product and,
// on an empty catalog, a starter menu. Running it again changes nothing.
func Seed(ctx context.Context, db *gorm.DB) error {
	log.Println("Creating default data...")
	products := repository.NewProductRepository(db)

	for _, category := range defaultCategories() {
		category := category
		if err := products.EnsureCategory(ctx, &category); err != nil {
			return fmt.Errorf("failed to create category %s: %w", category.Name, err)
		}
	}

	existing, err := products.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list products: %w", err)
	}

	if _, err := products.GetByName(ctx, models.GenericProductName); errors.Is(err, repository.ErrNotFound) {
		generic := &models.Product{
			Name:        models.GenericProductName,
			Price:       decimal.Zero,
			Available:   true,
			Description: "Itens diversos lançados com nome e preço livres",
		}
		if err := products.Create(ctx, generic); err != nil {
			return fmt.Errorf("failed to create generic product: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("failed to find generic product: %w", err)
	}

	if len(existing) > 0 {
		log.Println("Catalog already has products, skipping starter menu")
		return nil
	}
	for _, p := range starterMenu() {
		p := p
		if err := products.Create(ctx, &p); err != nil {
			return fmt.Errorf("failed to create product %s: %w", p.Name, err)
		}
	}
	log.Println("Default data created")
	return nil
}

func defaultCategories() []models.Category {
	return []models.Category{
		{ID: config.BeverageCategoryID, Name: "Bebidas", Description: "Refrigerantes, sucos e drinks", Active: true},
		{ID: config.PortionCategoryID, Name: "Porções", Description: "Preparadas na cozinha", Active: true},
	}
}

func starterMenu() []models.Product {
	price := decimal.RequireFromString
	return []models.Product{
		{Name: "Refrigerante lata", Price: price("6.00"), CategoryID: config.BeverageCategoryID, Available: true},
		{Name: "Suco natural", Price: price("9.00"), CategoryID: config.BeverageCategoryID, Available: true},
		{Name: "Cerveja long neck", Price: price("10.00"), CategoryID: config.BeverageCategoryID, Available: true},
		{Name: "Caipirinha", Price: price("18.00"), CategoryID: config.BeverageCategoryID, Available: true,
			Ingredients: datatypes.NewJSONSlice([]string{"cachaça", "limão", "açúcar", "gelo"})},
		{Name: "Batata frita", Price: price("28.00"), CategoryID: config.PortionCategoryID, Available: true, PreparationTime: 15,
			Ingredients: datatypes.NewJSONSlice([]string{"batata", "sal"})},
		{Name: "Frango a passarinho", Price: price("38.00"), CategoryID: config.PortionCategoryID, Available: true, PreparationTime: 20},
		{Name: "Calabresa acebolada", Price: price("32.00"), CategoryID: config.PortionCategoryID, Available: true, PreparationTime: 15},
	}
}
