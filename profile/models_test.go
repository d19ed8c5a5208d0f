package profile_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/billrun/profile"
	"github.com/xraph/billrun/types"
)

func TestValidateNormalizesCurrencyCase(t *testing.T) {
	cap := types.USD(50000)
	p := &profile.Profile{
		VendorID:   "vendor-1",
		Currency:   "USD",
		Mode:       profile.ModeItemized,
		MonthlyCap: &cap,
		Active:     true,
	}

	require.NoError(t, p.Validate())
	assert.Equal(t, "usd", p.Currency)
}

func TestValidateRejectsCapCurrencyMismatch(t *testing.T) {
	cap := types.Money{Amount: 50000, Currency: "eur"}
	p := &profile.Profile{
		VendorID:   "vendor-1",
		Currency:   "usd",
		Mode:       profile.ModeItemized,
		MonthlyCap: &cap,
	}

	err := p.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cap currency")
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	p := &profile.Profile{
		VendorID: "vendor-1",
		Currency: "usd",
		Mode:     "ad-hoc",
	}
	require.Error(t, p.Validate())
}
