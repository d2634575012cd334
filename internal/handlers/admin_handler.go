package handlers

import (
	"fmt"
	"net/http"

	"conveniencia/internal/services"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

const AdminPasswordHeader = "X-Admin-Password"

// PasswordGate guards the admin routes with the shared static password.
type PasswordGate struct {
	hash []byte
}

func NewPasswordGate(password string, cost int) (*PasswordGate, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash admin password: %w", err)
	}
	return &PasswordGate{hash: hash}, nil
}

func (g *PasswordGate) Check(password string) bool {
	return password != "" && bcrypt.CompareHashAndPassword(g.hash, []byte(password)) == nil
}

func (g *PasswordGate) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !g.Check(c.GetHeader(AdminPasswordHeader)) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Senha incorreta"})
			return
		}
		c.Next()
	}
}

// Login lets the UI validate the password before showing admin screens.
func (g *PasswordGate) Login(c *gin.Context) {
	var req struct {
		Password string `json:"senha" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}
	if !g.Check(req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Senha incorreta"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *APIHandler) ListProducts(c *gin.Context) {
	products, err := h.productService.ListProducts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"produtos": products})
}

func (h *APIHandler) ListCategories(c *gin.Context) {
	categories, err := h.productService.ListCategories(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"categorias": categories})
}

func (h *APIHandler) CreateProduct(c *gin.Context) {
	var input services.ProductInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}
	product, err := h.productService.CreateProduct(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (h *APIHandler) UpdateProduct(c *gin.Context) {
	var input services.ProductInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}
	product, err := h.productService.UpdateProduct(c.Request.Context(), c.Param("id"), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *APIHandler) DeleteProduct(c *gin.Context) {
	if err := h.productService.DeleteProduct(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "disponivel": false})
}
