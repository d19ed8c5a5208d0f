package billrun_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/billrun"
	"github.com/xraph/billrun/billable"
	"github.com/xraph/billrun/invoice"
	"github.com/xraph/billrun/profile"
	"github.com/xraph/billrun/run"
	"github.com/xraph/billrun/store/memory"
	"github.com/xraph/billrun/types"
)

var (
	aug15  = time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	july10 = time.Date(2026, 7, 10, 9, 0, 0, 0, time.UTC)
)

type captureDispatcher struct {
	sent []*invoice.Invoice
	fail error
}

func (d *captureDispatcher) Dispatch(_ context.Context, inv *invoice.Invoice) error {
	if d.fail != nil {
		return d.fail
	}
	d.sent = append(d.sent, inv)
	return nil
}

type recordingPlugin struct {
	splits       int
	runs         int
	carries      int
	carriedCents int64
}

func (p *recordingPlugin) Name() string { return "recording" }

func (p *recordingPlugin) OnItemSplit(_ context.Context, _ interface{}) error {
	p.splits++
	return nil
}

func (p *recordingPlugin) OnCarryForward(_ context.Context, _, _ string, deferredCents int64, _ int) error {
	p.carries++
	p.carriedCents += deferredCents
	return nil
}

func (p *recordingPlugin) OnRunSent(_ context.Context, _ interface{}) error {
	p.runs++
	return nil
}

func newTestEngine(t *testing.T, opts ...billrun.Option) (*billrun.Engine, *memory.Store, *captureDispatcher) {
	t.Helper()

	st := memory.New()
	disp := &captureDispatcher{}
	opts = append([]billrun.Option{
		billrun.WithClock(func() time.Time { return aug15 }),
		billrun.WithDispatcher(disp),
	}, opts...)

	e := billrun.New(st, opts...)
	require.NoError(t, e.Start(context.Background()))
	return e, st, disp
}

func saveVendor(t *testing.T, e *billrun.Engine, vendorID string, mode profile.InvoiceMode, capMinor int64) {
	t.Helper()

	var monthlyCap *types.Money
	if capMinor > 0 {
		c := types.USD(capMinor)
		monthlyCap = &c
	}
	require.NoError(t, e.SaveProfile(context.Background(), &profile.Profile{
		VendorID:   vendorID,
		Name:       "Vendor " + vendorID,
		Email:      vendorID + "@example.test",
		Currency:   "USD",
		Mode:       mode,
		MonthlyCap: monthlyCap,
		PrimaryTax: types.TaxPercent(20),
		DueDays:    14,
		Active:     true,
	}))
}

func addTime(t *testing.T, e *billrun.Engine, vendorID, projectID string, minutes int64, hourly types.Money, pct int64, date time.Time) *billable.TimeEntry {
	t.Helper()

	entry, err := e.AddTimeEntry(context.Background(), vendorID, projectID, "Consulting", minutes, hourly, types.TaxPercent(pct))
	require.NoError(t, err)
	entry.EntryDate = date
	return entry
}

func TestRunBilling_Itemized(t *testing.T) {
	e, st, disp := newTestEngine(t)
	ctx := context.Background()

	saveVendor(t, e, "acme", profile.ModeItemized, 0)
	require.NoError(t, e.CreateChargeDefinition(ctx, &billable.ChargeDefinition{
		VendorID:    "acme",
		ProjectID:   "proj-site",
		Description: "Hosting",
		Amount:      types.USD(10000),
		TaxRate:     types.TaxPercent(10),
		Active:      true,
	}))
	addTime(t, e, "acme", "proj-site", 60, types.USD(12000), 10, july10)

	// Dated inside August, so it must not ride on July's invoice.
	future := addTime(t, e, "acme", "proj-site", 30, types.USD(12000), 10, aug15)

	results, err := e.RunBilling(ctx, billrun.RunOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	assert.Equal(t, run.ResultSent, res.Status)
	assert.Equal(t, "2026-07", res.PeriodLabel)
	assert.Equal(t, 2, res.ItemsBilled)
	assert.False(t, res.SplitPerformed)

	// 10000 + 10% tax plus 12000 + 10% tax.
	assert.Equal(t, int64(24200), res.InvoiceTotal.Amount)

	inv, err := e.GetInvoice(ctx, res.InvoiceID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusSent, inv.Status)
	assert.Equal(t, invoice.ModeItemized, inv.Mode)
	assert.Equal(t, "INV-000001", inv.Number)
	require.NotNil(t, inv.DueDate)
	assert.Equal(t, aug15.AddDate(0, 0, 14), *inv.DueDate)
	require.Len(t, inv.Lines, 2)
	assert.Equal(t, "Hosting", inv.Lines[0].Description)

	require.Len(t, disp.sent, 1)
	assert.Equal(t, inv.ID, disp.sent[0].ID)

	// The August entry stays unbilled.
	unbilled, err := st.ListItemsByStatus(ctx, "acme", billable.StatusUnbilled)
	require.NoError(t, err)
	require.Len(t, unbilled, 1)
	assert.Equal(t, future.ItemID(), unbilled[0].ItemID())
}

func TestRunBilling_CapSplitsBoundaryItem(t *testing.T) {
	rec := &recordingPlugin{}
	e, st, _ := newTestEngine(t, billrun.WithPlugin(rec))
	ctx := context.Background()

	saveVendor(t, e, "acme", profile.ModeItemized, 50000)
	// 360 minutes at $100/hr, no tax: $600.00 against a $500.00 cap.
	entry := addTime(t, e, "acme", "proj-site", 360, types.USD(10000), 0, july10)

	results, err := e.RunBilling(ctx, billrun.RunOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	assert.Equal(t, run.ResultSent, res.Status)
	assert.True(t, res.SplitPerformed)
	assert.Equal(t, int64(50000), res.InvoiceTotal.Amount)
	assert.Equal(t, int64(10000), res.CarriedForward.Amount)
	assert.Equal(t, 1, rec.splits)
	assert.Equal(t, 1, rec.runs)
	assert.Equal(t, 1, rec.carries)
	assert.Equal(t, int64(10000), rec.carriedCents)

	// The retained part keeps the original ID and is billed; the
	// remainder is a new unbilled item pointing back at it.
	billed, err := st.ListItemsByStatus(ctx, "acme", billable.StatusBilled)
	require.NoError(t, err)
	require.Len(t, billed, 1)
	assert.Equal(t, entry.ItemID(), billed[0].ItemID())
	assert.Equal(t, int64(50000), billed[0].ExTax().Amount)

	unbilled, err := st.ListItemsByStatus(ctx, "acme", billable.StatusUnbilled)
	require.NoError(t, err)
	require.Len(t, unbilled, 1)
	assert.Equal(t, int64(10000), unbilled[0].ExTax().Amount)

	remainder, ok := unbilled[0].(*billable.TimeEntry)
	require.True(t, ok)
	assert.Equal(t, entry.ItemID(), remainder.SplitFrom)

	// Value is conserved across the split.
	assert.Equal(t, int64(60000), billed[0].ExTax().Add(unbilled[0].ExTax()).Amount)
}

func TestRunBilling_CarryForwardBillsNextPeriod(t *testing.T) {
	now := aug15
	st := memory.New()
	e := billrun.New(st,
		billrun.WithClock(func() time.Time { return now }),
	)
	ctx := context.Background()
	require.NoError(t, e.Start(ctx))

	saveVendor(t, e, "acme", profile.ModeItemized, 50000)
	addTime(t, e, "acme", "proj-site", 360, types.USD(10000), 0, july10)

	results, err := e.RunBilling(ctx, billrun.RunOptions{})
	require.NoError(t, err)
	require.Equal(t, run.ResultSent, results[0].Status)
	require.Equal(t, int64(10000), results[0].CarriedForward.Amount)

	// A month later the remainder fits under the cap.
	now = time.Date(2026, 9, 5, 8, 0, 0, 0, time.UTC)

	results, err = e.RunBilling(ctx, billrun.RunOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, run.ResultSent, results[0].Status)
	assert.Equal(t, "2026-08", results[0].PeriodLabel)
	assert.Equal(t, int64(10000), results[0].InvoiceTotal.Amount)
	assert.True(t, results[0].CarriedForward.IsZero())

	unbilled, err := st.ListItemsByStatus(ctx, "acme", billable.StatusUnbilled)
	require.NoError(t, err)
	assert.Empty(t, unbilled)
}

func TestRunBilling_SecondRunIsIdempotent(t *testing.T) {
	e, _, disp := newTestEngine(t)
	ctx := context.Background()

	saveVendor(t, e, "acme", profile.ModeItemized, 0)
	addTime(t, e, "acme", "proj-site", 60, types.USD(10000), 0, july10)

	first, err := e.RunBilling(ctx, billrun.RunOptions{})
	require.NoError(t, err)
	require.Equal(t, run.ResultSent, first[0].Status)

	second, err := e.RunBilling(ctx, billrun.RunOptions{})
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, run.ResultSkipped, second[0].Status)
	assert.Equal(t, "period already billed", second[0].Reason)
	assert.Equal(t, first[0].InvoiceID, second[0].InvoiceID)

	// Only one invoice ever went out.
	assert.Len(t, disp.sent, 1)
}

func TestRunBilling_RecoversInterruptedRun(t *testing.T) {
	e, st, _ := newTestEngine(t)
	ctx := context.Background()

	saveVendor(t, e, "acme", profile.ModeItemized, 0)
	entry := addTime(t, e, "acme", "proj-site", 60, types.USD(10000), 0, july10)

	// Simulate a crash after locking but before invoicing.
	stale := run.New("acme", "2026-07", "USD")
	require.NoError(t, st.CreateRun(ctx, stale))
	locked, err := st.LockItems(ctx, stale.ID, []billrun.ID{entry.ItemID()})
	require.NoError(t, err)
	require.Equal(t, int64(1), locked)

	results, err := e.RunBilling(ctx, billrun.RunOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, run.ResultSent, results[0].Status)

	// The stale run was adopted, not duplicated.
	recovered, err := st.GetRunByPeriod(ctx, "acme", "2026-07")
	require.NoError(t, err)
	assert.Equal(t, stale.ID, recovered.ID)
	assert.Equal(t, run.StatusSent, recovered.Status)
	assert.Equal(t, results[0].InvoiceID, recovered.InvoiceID)
}

func TestRunBilling_DispatchFailureResumesAtSend(t *testing.T) {
	e, st, disp := newTestEngine(t)
	ctx := context.Background()

	saveVendor(t, e, "acme", profile.ModeItemized, 0)
	addTime(t, e, "acme", "proj-site", 60, types.USD(10000), 0, july10)

	disp.fail = errors.New("smtp: connection refused")

	results, err := e.RunBilling(ctx, billrun.RunOptions{})
	require.NoError(t, err)
	require.Equal(t, run.ResultFailed, results[0].Status)
	require.False(t, results[0].InvoiceID.IsNil())
	firstInvoice := results[0].InvoiceID

	// The run holds its invoice and locks for the retry.
	r, err := st.GetRunByPeriod(ctx, "acme", "2026-07")
	require.NoError(t, err)
	assert.Equal(t, run.StatusProcessing, r.Status)
	assert.Equal(t, firstInvoice, r.InvoiceID)

	pending, err := st.ListItemsByStatus(ctx, "acme", billable.StatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	disp.fail = nil

	results, err = e.RunBilling(ctx, billrun.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, run.ResultSent, results[0].Status)
	assert.Equal(t, firstInvoice, results[0].InvoiceID)

	billed, err := st.ListItemsByStatus(ctx, "acme", billable.StatusBilled)
	require.NoError(t, err)
	assert.Len(t, billed, 1)
	require.Len(t, disp.sent, 1)
	assert.Equal(t, firstInvoice, disp.sent[0].ID)
}

func TestRunBilling_CapBelowSmallestUnitFails(t *testing.T) {
	e, st, _ := newTestEngine(t)
	ctx := context.Background()

	// One 15-minute block at $1.00/hr cannot be split below 25 cents,
	// and the cap is 5 cents.
	saveVendor(t, e, "acme", profile.ModeItemized, 5)
	addTime(t, e, "acme", "proj-site", 15, types.USD(100), 0, july10)

	results, err := e.RunBilling(ctx, billrun.RunOptions{})
	require.NoError(t, err)
	require.Equal(t, run.ResultFailed, results[0].Status)
	assert.Contains(t, results[0].Reason, "smallest billable unit")

	r, err := st.GetRunByPeriod(ctx, "acme", "2026-07")
	require.NoError(t, err)
	assert.Equal(t, run.StatusFailed, r.Status)

	// Nothing stays locked after the failure.
	pending, err := st.ListItemsByStatus(ctx, "acme", billable.StatusPending)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRunBilling_GroupedTaxNeverOvershootsCap(t *testing.T) {
	e, _, disp := newTestEngine(t)
	ctx := context.Background()

	// Two 2¢ entries at 20%: each rounds to 0¢ tax, so the allocator
	// counts 4¢ inc-tax against the 4¢ cap. The grouped invoice line
	// must bill the same 4¢, not re-round tax on the 4¢ sum.
	saveVendor(t, e, "acme", profile.ModeItemized, 4)
	addTime(t, e, "acme", "proj-site", 15, types.USD(8), 20, july10)
	addTime(t, e, "acme", "proj-site", 15, types.USD(8), 20, july10)

	results, err := e.RunBilling(ctx, billrun.RunOptions{})
	require.NoError(t, err)
	require.Equal(t, run.ResultSent, results[0].Status)
	assert.Equal(t, int64(4), results[0].InvoiceTotal.Amount)

	require.Len(t, disp.sent, 1)
	assert.Equal(t, int64(4), disp.sent[0].Total.Amount)
}

func TestRunBilling_StatementModeLandsOnCap(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	saveVendor(t, e, "acme", profile.ModeStatement, 70000)
	require.NoError(t, e.CreateChargeDefinition(ctx, &billable.ChargeDefinition{
		VendorID:    "acme",
		ProjectID:   "proj-a",
		Description: "Consulting retainer",
		Amount:      types.USD(50000),
		TaxRate:     types.TaxPercent(20),
		SortOrder:   1,
		Active:      true,
	}))
	require.NoError(t, e.CreateChargeDefinition(ctx, &billable.ChargeDefinition{
		VendorID:    "acme",
		ProjectID:   "proj-b",
		Description: "License passthrough",
		Amount:      types.USD(20000),
		TaxRate:     types.TaxPercent(0),
		SortOrder:   2,
		Active:      true,
	}))

	results, err := e.RunBilling(ctx, billrun.RunOptions{})
	require.NoError(t, err)
	require.Equal(t, run.ResultSent, results[0].Status)
	assert.True(t, results[0].SplitPerformed)

	inv, err := e.GetInvoice(ctx, results[0].InvoiceID)
	require.NoError(t, err)
	assert.Equal(t, invoice.ModeStatement, inv.Mode)
	// The statement total lands exactly on the capped target.
	assert.Equal(t, int64(70000), inv.Total.Amount)
	assert.Len(t, inv.Lines, 2)

	require.NotEmpty(t, inv.Memo)
	assert.Contains(t, inv.Memo[0], "Balance before this invoice:")
}

func TestRunBilling_StatementTopsUpPriorBalance(t *testing.T) {
	now := aug15
	st := memory.New()
	e := billrun.New(st,
		billrun.WithClock(func() time.Time { return now }),
	)
	ctx := context.Background()
	require.NoError(t, e.Start(ctx))

	saveVendor(t, e, "acme", profile.ModeStatement, 70000)
	addTime(t, e, "acme", "proj-site", 300, types.USD(10000), 0, july10)

	results, err := e.RunBilling(ctx, billrun.RunOptions{})
	require.NoError(t, err)
	require.Equal(t, run.ResultSent, results[0].Status)
	require.Equal(t, int64(50000), results[0].InvoiceTotal.Amount)

	// July's invoice stays unpaid. August brings only 30000 of new
	// work, so the statement targets the lesser of the balance owed
	// (50000 + 30000) and the cap, topping up against the open
	// balance rather than stopping at the period's own items.
	now = time.Date(2026, 9, 5, 8, 0, 0, 0, time.UTC)
	addTime(t, e, "acme", "proj-site", 180, types.USD(10000), 0, time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC))

	results, err = e.RunBilling(ctx, billrun.RunOptions{})
	require.NoError(t, err)
	require.Equal(t, run.ResultSent, results[0].Status)
	assert.Equal(t, "2026-08", results[0].PeriodLabel)
	assert.Equal(t, int64(70000), results[0].InvoiceTotal.Amount)
}

func TestRunBilling_OpenPeriodIsRejected(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	saveVendor(t, e, "acme", profile.ModeItemized, 0)

	current := run.PeriodOf(aug15)
	_, err := e.RunBilling(ctx, billrun.RunOptions{Period: &current})
	require.ErrorIs(t, err, billrun.ErrPeriodOpen)

	results, err := e.RunBilling(ctx, billrun.RunOptions{Period: &current, Force: true})
	require.NoError(t, err)
	assert.Equal(t, run.ResultSkipped, results[0].Status)
	assert.Equal(t, "nothing to bill", results[0].Reason)
}

func TestRunBilling_NothingToBillThenRetry(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	saveVendor(t, e, "acme", profile.ModeItemized, 0)

	results, err := e.RunBilling(ctx, billrun.RunOptions{})
	require.NoError(t, err)
	require.Equal(t, run.ResultSkipped, results[0].Status)
	require.Equal(t, "nothing to bill", results[0].Reason)

	// Late-arriving July work still gets billed by a re-run.
	addTime(t, e, "acme", "proj-site", 60, types.USD(10000), 0, july10)

	results, err = e.RunBilling(ctx, billrun.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, run.ResultSent, results[0].Status)
	assert.Equal(t, int64(10000), results[0].InvoiceTotal.Amount)
}

func TestRunBilling_InactiveProfileSkipped(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.SaveProfile(ctx, &profile.Profile{
		VendorID: "dormant",
		Currency: "USD",
		Mode:     profile.ModeItemized,
		Active:   false,
	}))

	results, err := e.RunBilling(ctx, billrun.RunOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, run.ResultSkipped, results[0].Status)
	assert.Equal(t, "profile inactive", results[0].Reason)
}

func TestPreviewRun_WritesNothing(t *testing.T) {
	e, st, _ := newTestEngine(t)
	ctx := context.Background()

	saveVendor(t, e, "acme", profile.ModeItemized, 50000)
	addTime(t, e, "acme", "proj-site", 360, types.USD(10000), 0, july10)

	preview, err := e.PreviewRun(ctx, "acme", billrun.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, "2026-07", preview.PeriodLabel)
	assert.Equal(t, int64(50000), preview.Totals.Total.Amount)
	assert.True(t, preview.SplitPlanned)
	assert.Equal(t, int64(10000), preview.DeferredIncTax.Amount)
	require.NotNil(t, preview.Projection)
	assert.Equal(t, int64(60000), preview.Projection.BalanceBefore.Amount)

	// No run row, no locks, no persisted split.
	_, err = st.GetRunByPeriod(ctx, "acme", "2026-07")
	require.ErrorIs(t, err, billrun.ErrRunNotFound)

	unbilled, err := st.ListItemsByStatus(ctx, "acme", billable.StatusUnbilled)
	require.NoError(t, err)
	require.Len(t, unbilled, 1)
	assert.Equal(t, int64(60000), unbilled[0].ExTax().Amount)
}

func TestRunBilling_HoldDispatchThenResume(t *testing.T) {
	e, st, disp := newTestEngine(t)
	ctx := context.Background()

	saveVendor(t, e, "acme", profile.ModeItemized, 0)
	addTime(t, e, "acme", "proj-site", 60, types.USD(10000), 0, july10)

	held, err := e.RunBilling(ctx, billrun.RunOptions{HoldDispatch: true})
	require.NoError(t, err)
	require.Len(t, held, 1)
	assert.Equal(t, run.ResultSkipped, held[0].Status)
	assert.Equal(t, "dispatch held", held[0].Reason)
	require.False(t, held[0].InvoiceID.IsNil())
	assert.Empty(t, disp.sent)

	// The invoice is real and its items are claimed.
	inv, err := st.GetInvoice(ctx, held[0].InvoiceID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusOpen, inv.Status)
	pending, err := st.ListItemsByStatus(ctx, "acme", billable.StatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	// The next unheld sweep resumes at dispatch with the same invoice.
	results, err := e.RunBilling(ctx, billrun.RunOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, run.ResultSent, results[0].Status)
	assert.Equal(t, held[0].InvoiceID, results[0].InvoiceID)
	require.Len(t, disp.sent, 1)
	assert.Equal(t, inv.Number, disp.sent[0].Number)
}

func TestSaveProfile_DefaultCurrency(t *testing.T) {
	e, _, _ := newTestEngine(t, billrun.WithCurrency("EUR"))
	ctx := context.Background()

	require.NoError(t, e.SaveProfile(ctx, &profile.Profile{
		VendorID: "acme",
		Name:     "Acme",
		Mode:     profile.ModeItemized,
		Active:   true,
	}))

	prof, err := e.GetProfile(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "eur", prof.Currency)
}

func TestRecordPayment_SettlesInvoice(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	saveVendor(t, e, "acme", profile.ModeItemized, 0)
	addTime(t, e, "acme", "proj-site", 60, types.USD(10000), 0, july10)

	results, err := e.RunBilling(ctx, billrun.RunOptions{})
	require.NoError(t, err)
	require.Equal(t, run.ResultSent, results[0].Status)

	inv, err := e.RecordPayment(ctx, results[0].InvoiceID, types.USD(4000), "chk-101")
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusSent, inv.Status)
	assert.Equal(t, int64(6000), inv.Balance().Amount)

	inv, err = e.RecordPayment(ctx, results[0].InvoiceID, types.USD(6000), "chk-102")
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPaid, inv.Status)
	assert.True(t, inv.Balance().IsZero())

	open, err := e.ListOutstandingInvoices(ctx, "acme")
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestRunBilling_VendorFailureDoesNotAbortSweep(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	// First vendor fails its allocation; the second still bills.
	saveVendor(t, e, "alpha", profile.ModeItemized, 5)
	addTime(t, e, "alpha", "proj-a", 15, types.USD(100), 0, july10)

	saveVendor(t, e, "beta", profile.ModeItemized, 0)
	addTime(t, e, "beta", "proj-b", 60, types.USD(10000), 0, july10)

	results, err := e.RunBilling(ctx, billrun.RunOptions{})
	require.NoError(t, err)
	require.Len(t, results, 2)

	byVendor := map[string]run.VendorResult{}
	for _, res := range results {
		byVendor[res.VendorID] = res
	}
	assert.Equal(t, run.ResultFailed, byVendor["alpha"].Status)
	assert.Equal(t, run.ResultSent, byVendor["beta"].Status)
}
