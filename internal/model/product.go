package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	Name          string          `gorm:"size:255;not null" json:"name"`
	GrossPrice    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"gross_price"` // VAT inclusive
	StockQuantity *int            `json:"stock_quantity"`                                 // nil = untracked
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// TracksStock reports whether orders must decrement this product's stock.
func (p *Product) TracksStock() bool {
	return p.StockQuantity != nil
}
