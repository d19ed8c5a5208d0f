// Package statement projects a vendor's account balance around a new
// invoice: what was owed before, what remains after, how the remainder
// attributes across projects, and how long the balance takes to clear
// under the monthly cap. The projection is pure arithmetic over
// snapshots the caller loads; it never touches storage.
package statement

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/billrun/types"
)

// ProjectUnallocated buckets balance that no project claims.
const ProjectUnallocated = "unallocated"

// maxInstallments bounds the payment plan horizon.
const maxInstallments = 120

// Input is the snapshot a projection runs over. All money is
// tax-inclusive and shares one currency.
type Input struct {
	Currency string

	// OpenBalances are the unpaid balances of prior open invoices.
	OpenBalances []types.Money

	// BilledOutstanding maps project -> inc-tax value of billed but
	// unpaid items. Used for attribution only.
	BilledOutstanding map[string]types.Money

	// Unbilled maps project -> inc-tax value of currently unbilled
	// items, including anything this run deferred.
	Unbilled map[string]types.Money

	// InvoiceTotal is the inc-tax total of the invoice being issued.
	InvoiceTotal types.Money

	// MonthlyCap, when set, drives the payment plan.
	MonthlyCap *types.Money

	// From anchors the first payment plan month.
	From time.Time
}

// ProjectBalance is one project's share of the balance owed before
// the invoice.
type ProjectBalance struct {
	ProjectID string      `json:"project_id"`
	Gross     types.Money `json:"gross"` // billed-unpaid + unbilled
	Net       types.Money `json:"net"`   // proportional share of the balance before
}

// Installment is one month of the payment plan.
type Installment struct {
	Month  string      `json:"month"` // "2026-08"
	Amount types.Money `json:"amount"`
}

// Projection is the computed balance picture.
type Projection struct {
	BalanceBefore types.Money      `json:"balance_before"`
	InvoiceTotal  types.Money      `json:"invoice_total"`
	BalanceAfter  types.Money      `json:"balance_after"`
	Projects      []ProjectBalance `json:"projects,omitempty"`
	Plan          []Installment    `json:"plan,omitempty"`
}

// Project computes the balance projection for an input snapshot.
func Project(in Input) Projection {
	before := types.Zero(in.Currency)
	for _, b := range in.OpenBalances {
		before = before.Add(b)
	}
	for _, v := range in.Unbilled {
		before = before.Add(v)
	}

	// An invoice larger than the balance owed never drives the
	// account negative.
	after := before.Subtract(in.InvoiceTotal).Max(types.Zero(in.Currency))

	p := Projection{
		BalanceBefore: before,
		InvoiceTotal:  in.InvoiceTotal,
		BalanceAfter:  after,
	}
	p.Projects = attribute(in, before)
	p.Plan = plan(in, after)
	return p
}

// attribute spreads the balance owed before the invoice across
// projects in proportion to each project's gross exposure. Rounding
// residue lands in the final bucket so the shares always sum exactly
// to the balance.
func attribute(in Input, before types.Money) []ProjectBalance {
	if !before.IsPositive() {
		return nil
	}

	gross := make(map[string]types.Money)
	merge := func(m map[string]types.Money) {
		for project, v := range m {
			if project == "" {
				project = ProjectUnallocated
			}
			cur, ok := gross[project]
			if !ok {
				cur = types.Zero(in.Currency)
			}
			gross[project] = cur.Add(v)
		}
	}
	merge(in.BilledOutstanding)
	merge(in.Unbilled)

	if len(gross) == 0 {
		return []ProjectBalance{{ProjectID: ProjectUnallocated, Gross: types.Zero(in.Currency), Net: before}}
	}

	projects := make([]string, 0, len(gross))
	grossTotal := types.Zero(in.Currency)
	for project, v := range gross {
		projects = append(projects, project)
		grossTotal = grossTotal.Add(v)
	}
	sort.Strings(projects)

	out := make([]ProjectBalance, 0, len(projects))
	allocated := types.Zero(in.Currency)
	for i, project := range projects {
		share := before.Subtract(allocated) // last bucket takes the residue
		if i < len(projects)-1 && grossTotal.IsPositive() {
			ratio := decimal.NewFromInt(gross[project].Amount).
				Mul(decimal.NewFromInt(before.Amount)).
				Div(decimal.NewFromInt(grossTotal.Amount)).
				Round(0)
			share = types.Money{Amount: ratio.IntPart(), Currency: in.Currency}
		}
		allocated = allocated.Add(share)
		out = append(out, ProjectBalance{ProjectID: project, Gross: gross[project], Net: share})
	}
	return out
}

// plan lays the remaining balance out as monthly cap-sized payments,
// bounded at maxInstallments with the final month absorbing whatever
// is left.
func plan(in Input, after types.Money) []Installment {
	if in.MonthlyCap == nil || !in.MonthlyCap.IsPositive() || !after.IsPositive() {
		return nil
	}

	capAmt := *in.MonthlyCap
	month := time.Date(in.From.Year(), in.From.Month(), 1, 0, 0, 0, 0, time.UTC)

	var out []Installment
	remaining := after
	for remaining.IsPositive() {
		amount := remaining.Min(capAmt)
		if len(out) == maxInstallments-1 {
			amount = remaining // horizon reached; fold the tail in
		}
		out = append(out, Installment{
			Month:  fmt.Sprintf("%04d-%02d", month.Year(), int(month.Month())),
			Amount: amount,
		})
		remaining = remaining.Subtract(amount)
		month = month.AddDate(0, 1, 0)
	}
	return out
}

// MemoLines renders the projection as invoice memo text.
func (p Projection) MemoLines() []string {
	lines := []string{fmt.Sprintf("Balance before this invoice: %s", p.BalanceBefore)}
	for _, pb := range p.Projects {
		lines = append(lines, fmt.Sprintf("  %s: %s", pb.ProjectID, pb.Net))
	}
	lines = append(lines,
		fmt.Sprintf("This invoice: %s", p.InvoiceTotal),
		fmt.Sprintf("Balance remaining: %s", p.BalanceAfter),
	)
	if n := len(p.Plan); n > 0 {
		last := p.Plan[n-1]
		lines = append(lines, fmt.Sprintf("At the current monthly cap the balance clears in %d payment(s), by %s.", n, last.Month))
	}
	return lines
}
