package billrun

import "github.com/xraph/billrun/types"

// Re-export common types for convenience so users don't have to import types package.

// Money is re-exported from types package.
type Money = types.Money

// TaxRate is re-exported from types package.
type TaxRate = types.TaxRate

// Entity is re-exported from types package.
type Entity = types.Entity

// Re-export Money constructors
var (
	USD  = types.USD
	EUR  = types.EUR
	GBP  = types.GBP
	Zero = types.Zero
	Sum  = types.Sum
)

// Re-export TaxRate constructors
var (
	TaxPercent   = types.TaxPercent
	ParseTaxRate = types.ParseTaxRate
)

// Re-export Entity constructor
var NewEntity = types.NewEntity
