// Package catalog decides how a product is prepared and printed.
package catalog

import (
	"strings"

	"conveniencia/internal/models"
)

type Kind string

const (
	KindBeverage Kind = "beverage"
	KindPortion  Kind = "portion"
	KindGeneral  Kind = "general"
)

// Classifier maps products to a Kind. The category id mapping wins; the
// keyword lists only apply to products whose category is not mapped.
type Classifier struct {
	categories map[string]Kind
	beverage   []string
	portion    []string
}

func NewClassifier(categoryKinds map[string]string, beverageKeywords, portionKeywords []string) *Classifier {
	c := &Classifier{
		categories: make(map[string]Kind, len(categoryKinds)),
		beverage:   lower(beverageKeywords),
		portion:    lower(portionKeywords),
	}
	for id, kind := range categoryKinds {
		switch k := Kind(strings.ToLower(kind)); k {
		case KindBeverage, KindPortion, KindGeneral:
			c.categories[id] = k
		}
	}
	return c
}

func (c *Classifier) Classify(p *models.Product) Kind {
	if p == nil {
		return KindGeneral
	}
	if kind, ok := c.categories[p.CategoryID]; ok {
		return kind
	}

	text := strings.ToLower(p.Name + " " + p.Description)
	if containsAny(text, c.beverage) {
		return KindBeverage
	}
	if containsAny(text, c.portion) {
		return KindPortion
	}
	return KindGeneral
}

// RequiresKitchen reports whether lines of this product go through the
// preparation workflow and start in "preparing".
func (c *Classifier) RequiresKitchen(p *models.Product) bool {
	return c.Classify(p) == KindPortion
}

// InitialStatus is the status a new line of p starts with.
func (c *Classifier) InitialStatus(p *models.Product) *models.LineStatus {
	if c.RequiresKitchen(p) {
		return models.StatusPtr(models.LinePreparing)
	}
	return nil
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if w != "" && strings.Contains(text, w) {
			return true
		}
	}
	return false
}

func lower(words []string) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = strings.ToLower(strings.TrimSpace(w))
	}
	return out
}
