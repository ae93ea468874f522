package product

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product is the catalog read model consumed by order assembly and payment
// reconciliation. Catalog management lives outside this service; only the
// fields those flows touch are carried here.
type Product struct {
	ID            string
	Name          string
	Price         decimal.Decimal
	StockQuantity int
	SalesCount    int
	Flavors       []string
	Sizes         []string
}
