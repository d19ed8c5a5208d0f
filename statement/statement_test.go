package statement_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/billrun/statement"
	"github.com/xraph/billrun/types"
)

func aug() time.Time {
	return time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC)
}

func TestProjectBalances(t *testing.T) {
	// Owed 1200 in total; this capped invoice bills 500, leaving 700.
	in := statement.Input{
		Currency:     "usd",
		OpenBalances: []types.Money{types.USD(400)},
		Unbilled: map[string]types.Money{
			"proj-a": types.USD(800),
		},
		InvoiceTotal: types.USD(500),
		From:         aug(),
	}

	p := statement.Project(in)

	assert.Equal(t, int64(1200), p.BalanceBefore.Amount)
	assert.Equal(t, int64(500), p.InvoiceTotal.Amount)
	assert.Equal(t, int64(700), p.BalanceAfter.Amount)
}

func TestProjectClampsBalanceAfter(t *testing.T) {
	// A top-up invoice can exceed what this snapshot counts as owed;
	// the remaining balance floors at zero.
	in := statement.Input{
		Currency:     "usd",
		Unbilled:     map[string]types.Money{"proj-a": types.USD(500)},
		InvoiceTotal: types.USD(600),
		From:         aug(),
	}

	p := statement.Project(in)
	assert.True(t, p.BalanceAfter.IsZero())
	assert.Empty(t, p.Plan)
}

func TestProjectAttribution(t *testing.T) {
	t.Run("proportional shares sum exactly", func(t *testing.T) {
		in := statement.Input{
			Currency: "usd",
			BilledOutstanding: map[string]types.Money{
				"proj-a": types.USD(100),
			},
			Unbilled: map[string]types.Money{
				"proj-a": types.USD(233),
				"proj-b": types.USD(334),
				"proj-c": types.USD(333),
			},
			InvoiceTotal: types.USD(300),
			From:         aug(),
		}

		// Before = unbilled only (233+334+333); billed-outstanding
		// shapes attribution but is not re-owed.
		p := statement.Project(in)
		require.Equal(t, int64(900), p.BalanceBefore.Amount)
		require.Equal(t, int64(600), p.BalanceAfter.Amount)
		require.Len(t, p.Projects, 3)

		sum := types.Zero("usd")
		for _, pb := range p.Projects {
			sum = sum.Add(pb.Net)
		}
		assert.Equal(t, p.BalanceBefore, sum, "rounding residue must land in a bucket")

		// proj-a gross 333 of 1000 -> 300 of the 900 owed before.
		assert.Equal(t, "proj-a", p.Projects[0].ProjectID)
		assert.Equal(t, int64(333), p.Projects[0].Gross.Amount)
		assert.Equal(t, int64(300), p.Projects[0].Net.Amount)
	})

	t.Run("items without a project land in unallocated", func(t *testing.T) {
		in := statement.Input{
			Currency: "usd",
			Unbilled: map[string]types.Money{
				"": types.USD(500),
			},
			InvoiceTotal: types.USD(200),
			From:         aug(),
		}

		p := statement.Project(in)
		require.Len(t, p.Projects, 1)
		assert.Equal(t, statement.ProjectUnallocated, p.Projects[0].ProjectID)
		assert.Equal(t, int64(500), p.Projects[0].Net.Amount)
	})

	t.Run("no attribution when nothing is owed", func(t *testing.T) {
		in := statement.Input{
			Currency: "usd",
			From:     aug(),
		}

		p := statement.Project(in)
		assert.True(t, p.BalanceBefore.IsZero())
		assert.Empty(t, p.Projects)
		assert.Empty(t, p.Plan)
	})

	t.Run("attribution reconciles to the balance before even when the invoice clears it", func(t *testing.T) {
		in := statement.Input{
			Currency:     "usd",
			Unbilled:     map[string]types.Money{"proj-a": types.USD(500)},
			InvoiceTotal: types.USD(500),
			From:         aug(),
		}

		p := statement.Project(in)
		assert.True(t, p.BalanceAfter.IsZero())
		require.Len(t, p.Projects, 1)
		assert.Equal(t, int64(500), p.Projects[0].Net.Amount)
		assert.Empty(t, p.Plan)
	})
}

func TestProjectPaymentPlan(t *testing.T) {
	t.Run("cap-sized installments with a short final month", func(t *testing.T) {
		cap := types.USD(500)
		in := statement.Input{
			Currency:     "usd",
			Unbilled:     map[string]types.Money{"proj-a": types.USD(1700)},
			InvoiceTotal: types.USD(500),
			MonthlyCap:   &cap,
			From:         aug(),
		}

		p := statement.Project(in)
		require.Equal(t, int64(1200), p.BalanceAfter.Amount)
		require.Len(t, p.Plan, 3)

		assert.Equal(t, "2026-08", p.Plan[0].Month)
		assert.Equal(t, int64(500), p.Plan[0].Amount.Amount)
		assert.Equal(t, "2026-09", p.Plan[1].Month)
		assert.Equal(t, int64(500), p.Plan[1].Amount.Amount)
		assert.Equal(t, "2026-10", p.Plan[2].Month)
		assert.Equal(t, int64(200), p.Plan[2].Amount.Amount)
	})

	t.Run("horizon bounded at 120 months", func(t *testing.T) {
		cap := types.USD(1)
		in := statement.Input{
			Currency:     "usd",
			Unbilled:     map[string]types.Money{"proj-a": types.USD(100000)},
			InvoiceTotal: types.USD(1),
			MonthlyCap:   &cap,
			From:         aug(),
		}

		p := statement.Project(in)
		require.Len(t, p.Plan, 120)

		total := types.Zero("usd")
		for _, inst := range p.Plan {
			total = total.Add(inst.Amount)
		}
		assert.Equal(t, p.BalanceAfter, total, "final installment absorbs the tail")
	})

	t.Run("no plan without a cap", func(t *testing.T) {
		in := statement.Input{
			Currency:     "usd",
			Unbilled:     map[string]types.Money{"proj-a": types.USD(1000)},
			InvoiceTotal: types.USD(300),
			From:         aug(),
		}
		p := statement.Project(in)
		assert.Empty(t, p.Plan)
	})
}

func TestMemoLines(t *testing.T) {
	cap := types.USD(500)
	in := statement.Input{
		Currency:     "usd",
		Unbilled:     map[string]types.Money{"proj-a": types.USD(1200)},
		InvoiceTotal: types.USD(500),
		MonthlyCap:   &cap,
		From:         aug(),
	}

	lines := statement.Project(in).MemoLines()
	require.NotEmpty(t, lines)
	assert.Equal(t, "Balance before this invoice: $12.00", lines[0])
	assert.Equal(t, "  proj-a: $12.00", lines[1])
	assert.Equal(t, "This invoice: $5.00", lines[2])
	assert.Equal(t, "Balance remaining: $7.00", lines[3])
	assert.Contains(t, lines[len(lines)-1], "by 2026-09")
}
