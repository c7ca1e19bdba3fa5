package stock

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// VariantOption is one purchasable configuration of a product (e.g. size "42").
// Its stock is counted independently from the product total.
type VariantOption struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Stock int             `json:"stock"`
	SKU   string          `json:"sku,omitempty"`
	Image string          `json:"image,omitempty"`
}

type VariantGroup struct {
	Name    string          `json:"name"`
	Options []VariantOption `json:"options"`
}

// Product is the stock ledger document of one catalog product.
type Product struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Stock     int            `json:"stock"`
	Variants  []VariantGroup `json:"variants"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Option returns the option called name, or nil. Option names are unique
// within a product, see Validate.
func (p *Product) Option(name string) *VariantOption {
	for gi := range p.Variants {
		for oi := range p.Variants[gi].Options {
			if p.Variants[gi].Options[oi].Name == name {
				return &p.Variants[gi].Options[oi]
			}
		}
	}
	return nil
}

// ErrInvalidProduct wraps every error returned by Validate.
var ErrInvalidProduct = errors.New("invalid product")

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidProduct, fmt.Sprintf(format, args...))
}

func (p Product) Validate() error {
	if p.ID == "" {
		return invalidf("product id is required")
	}
	if p.Stock < 0 {
		return invalidf("product %s: stock cannot be negative", p.ID)
	}
	seen := map[string]bool{}
	for _, g := range p.Variants {
		if len(g.Options) == 0 {
			return invalidf("product %s: variant %q has no options", p.ID, g.Name)
		}
		for _, o := range g.Options {
			if o.Name == "" {
				return invalidf("product %s: variant %q has an unnamed option", p.ID, g.Name)
			}
			if seen[o.Name] {
				return invalidf("product %s: duplicate option name %q", p.ID, o.Name)
			}
			seen[o.Name] = true
			if o.Stock < 0 {
				return invalidf("product %s: option %q stock cannot be negative", p.ID, o.Name)
			}
			if o.Stock > p.Stock {
				return invalidf("product %s: option %q stock %d exceeds product stock %d", p.ID, o.Name, o.Stock, p.Stock)
			}
		}
	}
	return nil
}

// Clone returns a deep copy so callers never share variant slices with a ledger.
func (p Product) Clone() Product {
	out := p
	if p.Variants != nil {
		out.Variants = make([]VariantGroup, len(p.Variants))
		for i, g := range p.Variants {
			out.Variants[i] = VariantGroup{Name: g.Name, Options: append([]VariantOption(nil), g.Options...)}
		}
	}
	return out
}
