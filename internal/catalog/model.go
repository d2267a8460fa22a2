// Package catalog manages the wholesale product list shown on the storefront
// and used to ground the sales chatbot.
package catalog

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrProductNotFound is returned when a product id is unknown.
	ErrProductNotFound = errors.New("catalog: product not found")
	// ErrInvalidName is returned when a product has no name.
	ErrInvalidName = errors.New("catalog: name is required")
	// ErrInvalidPrice is returned for negative prices.
	ErrInvalidPrice = errors.New("catalog: price must not be negative")
)

// Product is one row of the produtos table.
type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"nome"`
	Description string          `json:"descricao,omitempty"`
	Category    string          `json:"categoria,omitempty"`
	Price       decimal.Decimal `json:"preco"`
	Unit        string          `json:"unidade,omitempty"`
	Active      bool            `json:"ativo"`
	ImageURL    string          `json:"imagem_url,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// PriceLabel renders the price the way the storefront shows it, e.g. "R$ 25,90".
func (p Product) PriceLabel() string {
	value := p.Price.StringFixed(2)
	return "R$ " + strings.Replace(value, ".", ",", 1)
}

// ProductInput is the writable part of a product.
type ProductInput struct {
	Name        string          `json:"nome"`
	Description string          `json:"descricao"`
	Category    string          `json:"categoria"`
	Price       decimal.Decimal `json:"preco"`
	Unit        string          `json:"unidade"`
	Active      *bool           `json:"ativo,omitempty"`
	ImageURL    string          `json:"imagem_url"`
}

// Validate trims the input and checks required fields.
func (in *ProductInput) Validate() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Category = strings.TrimSpace(in.Category)
	in.Unit = strings.TrimSpace(in.Unit)
	if in.Name == "" {
		return ErrInvalidName
	}
	if in.Price.IsNegative() {
		return ErrInvalidPrice
	}
	return nil
}

func (in ProductInput) active() bool {
	if in.Active == nil {
		return true
	}
	return *in.Active
}

// ListFilter narrows admin listings.
type ListFilter struct {
	Category   string
	OnlyActive bool
	Search     string
	Limit      int
	Offset     int
}
