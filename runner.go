package billrun

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/billrun/allocator"
	"github.com/xraph/billrun/billable"
	"github.com/xraph/billrun/id"
	"github.com/xraph/billrun/invoice"
	"github.com/xraph/billrun/profile"
	"github.com/xraph/billrun/run"
	"github.com/xraph/billrun/statement"
	"github.com/xraph/billrun/types"
)

// RunOptions configures a billing sweep.
type RunOptions struct {
	// VendorID restricts the sweep to one vendor. Empty runs every
	// vendor with a profile.
	VendorID string

	// Period overrides the billing window. Nil bills the month most
	// recently closed.
	Period *run.Period

	// Force allows billing a period that has not closed yet.
	Force bool

	// HoldDispatch persists the run, the item locks, and the invoice
	// but stops before dispatch. The run stays processing; the next
	// sweep without the hold resumes at the dispatch step.
	HoldDispatch bool
}

// RunBilling executes a billing sweep: one run per vendor for the
// period. A vendor failure never aborts the sweep; it lands in that
// vendor's result and the others still run.
func (e *Engine) RunBilling(ctx context.Context, opts RunOptions) ([]run.VendorResult, error) {
	period := run.PreviousPeriod(e.now())
	if opts.Period != nil {
		period = *opts.Period
	}
	if !opts.Force && !period.Closed(e.now()) {
		return nil, fmt.Errorf("%w: %s closes at %s", ErrPeriodOpen, period.Label, period.End.Format(time.RFC3339))
	}

	vendors := []string{opts.VendorID}
	if opts.VendorID == "" {
		var err error
		vendors, err = e.store.ListVendors(ctx)
		if err != nil {
			return nil, err
		}
	}

	results := make([]run.VendorResult, 0, len(vendors))
	for _, vendorID := range vendors {
		prof, err := e.store.GetProfile(ctx, vendorID)
		if err != nil {
			results = append(results, run.VendorResult{
				VendorID:    vendorID,
				PeriodLabel: period.Label,
				Status:      run.ResultFailed,
				Reason:      err.Error(),
			})
			continue
		}
		results = append(results, e.runVendor(ctx, prof, period, opts.HoldDispatch))
	}
	return results, nil
}

// runVendor drives one vendor through a full billing run.
func (e *Engine) runVendor(ctx context.Context, prof *profile.Profile, period run.Period, hold bool) run.VendorResult {
	res := run.VendorResult{
		VendorID:       prof.VendorID,
		PeriodLabel:    period.Label,
		InvoiceTotal:   types.Zero(prof.Currency),
		CarriedForward: types.Zero(prof.Currency),
	}

	if !prof.Active {
		return e.skipResult(ctx, res, "profile inactive")
	}

	adm, err := e.admitRun(ctx, prof, period)
	if err != nil {
		res.Status = run.ResultFailed
		res.Reason = err.Error()
		e.plugins.EmitRunFailed(ctx, prof.VendorID, period.Label, err)
		return res
	}

	switch adm.Outcome {
	case run.AdmissionAlreadySent:
		res.InvoiceID = adm.Run.InvoiceID
		return e.skipResult(ctx, res, "period already billed")
	case run.AdmissionRecovered:
		if !adm.Run.InvoiceID.IsNil() {
			if hold {
				res.InvoiceID = adm.Run.InvoiceID
				return e.skipResult(ctx, res, "dispatch held")
			}
			// The previous attempt died after creating the invoice.
			// Its items are still locked, so resume at dispatch
			// instead of rebuilding.
			return e.resumeDispatch(ctx, prof, period, adm.Run, res)
		}
	}

	r := adm.Run
	e.plugins.EmitRunStarted(ctx, prof.VendorID, period.Label)

	if _, err := e.ensureChargeInstances(ctx, prof.VendorID, period.Label); err != nil {
		return e.failRun(ctx, r, res, err)
	}

	candidates, err := e.loadCandidates(ctx, prof.VendorID, period)
	if err != nil {
		return e.failRun(ctx, r, res, err)
	}
	if len(candidates) == 0 {
		// Leave the run failed rather than sent so items entered
		// later for this period can still be billed by a re-run.
		r.Fail(ErrNothingToDo.Error())
		_ = e.store.UpdateRun(ctx, r) //nolint:errcheck // run row is advisory here
		return e.skipResult(ctx, res, "nothing to bill")
	}

	var capAmount *types.Money
	if prof.Capped() {
		capAmount = prof.MonthlyCap
	}

	alloc, err := allocator.Allocate(candidates, capAmount)
	if err != nil {
		return e.failRun(ctx, r, res, err)
	}

	// The split is persisted before locking so a crash between the
	// two leaves only an extra unbilled remainder, never a lost one.
	if alloc.Split != nil {
		if err := e.store.ApplySplit(ctx, alloc.Split.Retained, alloc.Split.Remainder); err != nil {
			return e.failRun(ctx, r, res, err)
		}
		e.plugins.EmitItemSplit(ctx, alloc.Split)
		res.SplitPerformed = true
	}

	itemIDs := make([]id.ID, 0, len(alloc.Selected))
	itemKeys := make([]string, 0, len(alloc.Selected))
	for _, item := range alloc.Selected {
		itemIDs = append(itemIDs, item.ItemID())
		itemKeys = append(itemKeys, item.ItemID().String())
	}

	locked, err := e.store.LockItems(ctx, r.ID, itemIDs)
	if err != nil {
		return e.failRun(ctx, r, res, err)
	}
	if locked != int64(len(itemIDs)) {
		return e.failRun(ctx, r, res, &PartialLockError{
			RunID:     r.ID,
			Requested: len(itemIDs),
			Locked:    locked,
		})
	}
	e.plugins.EmitItemsLocked(ctx, r.ID.String(), locked)

	r.SelectedItems = itemKeys
	if err := e.store.UpdateRun(ctx, r); err != nil {
		return e.failRun(ctx, r, res, err)
	}

	carried := types.Zero(prof.Currency)
	for _, item := range alloc.Deferred {
		carried = carried.Add(item.IncTax())
	}
	if len(alloc.Deferred) > 0 {
		e.plugins.EmitCarryForward(ctx, prof.VendorID, period.Label, carried.Amount, len(alloc.Deferred))
	}

	draft, err := e.buildDraft(ctx, prof, period, alloc, alloc.Selected)
	if err != nil {
		return e.failRun(ctx, r, res, err)
	}

	totals := draft.Totalize()
	if prof.Capped() || prof.Mode == profile.ModeStatement {
		// Selected items are pending by now, so they are passed in
		// explicitly to count toward the balance before the invoice.
		proj, err := e.projectBalance(ctx, prof, period, totals.Total, alloc.Selected)
		if err != nil {
			return e.failRun(ctx, r, res, err)
		}
		draft.Memo = append(draft.Memo, proj.MemoLines()...)
	}

	seq, err := e.store.NextInvoiceNumber(ctx)
	if err != nil {
		return e.failRun(ctx, r, res, err)
	}

	var due *time.Time
	if prof.DueDays > 0 {
		d := e.now().AddDate(0, 0, prof.DueDays)
		due = &d
	}

	inv := draft.Materialize(r.ID, invoice.FormatNumber(seq), due)
	if err := e.store.CreateInvoice(ctx, inv); err != nil {
		return e.failRun(ctx, r, res, err)
	}

	r.InvoiceID = inv.ID
	if err := e.store.UpdateRun(ctx, r); err != nil {
		return e.failRun(ctx, r, res, err)
	}
	e.plugins.EmitInvoiceCreated(ctx, inv)

	res.ItemsBilled = len(alloc.Selected)
	if hold {
		// Everything up to dispatch is durable: the run stays
		// processing with its invoice linked and items pending.
		res.InvoiceID = inv.ID
		res.InvoiceTotal = inv.Total
		res.CarriedForward = carried
		return e.skipResult(ctx, res, "dispatch held")
	}
	return e.finishRun(ctx, prof, period, r, inv, res, carried)
}

// buildDraft shapes the allocation into the vendor's invoice mode.
// pending carries items already locked for this run, which no longer
// scan as unbilled yet still count as owed.
func (e *Engine) buildDraft(ctx context.Context, prof *profile.Profile, period run.Period, alloc *allocator.Result, pending []billable.Item) (*invoice.Draft, error) {
	in := invoice.MaterializeInput{
		VendorID:    prof.VendorID,
		PeriodLabel: period.Label,
		Currency:    prof.Currency,
		Items:       alloc.Selected,
	}

	if prof.Mode == profile.ModeStatement {
		var target *types.Money
		if prof.Capped() {
			// The statement lands on the lesser of the balance owed
			// before this invoice and the monthly cap, topping up
			// against prior open invoices when the period's own items
			// fall short.
			proj, err := e.projectBalance(ctx, prof, period, types.Zero(prof.Currency), pending)
			if err != nil {
				return nil, err
			}
			t := proj.BalanceBefore.Min(*prof.MonthlyCap)
			target = &t
		}
		return invoice.Statement(in, prof.PrimaryTax, target)
	}
	return invoice.Itemized(in), nil
}

// finishRun dispatches the invoice and completes the run. On dispatch
// failure the run stays processing with the invoice linked and its
// items locked; the next run for this period resumes here.
func (e *Engine) finishRun(ctx context.Context, prof *profile.Profile, period run.Period, r *run.Run, inv *invoice.Invoice, res run.VendorResult, carried types.Money) run.VendorResult {
	if err := e.dispatch(ctx, inv); err != nil {
		derr := &DispatchError{InvoiceID: inv.ID, Err: err}
		e.logger.Error("invoice dispatch failed",
			"vendor", prof.VendorID,
			"period", period.Label,
			"invoice", inv.Number,
			"error", err,
		)
		e.plugins.EmitRunFailed(ctx, prof.VendorID, period.Label, derr)

		res.Status = run.ResultFailed
		res.Reason = derr.Error()
		res.InvoiceID = inv.ID
		res.InvoiceTotal = inv.Total
		return res
	}

	if _, err := e.store.MarkBilled(ctx, r.ID, inv.ID); err != nil {
		return e.failRun(ctx, r, res, err)
	}
	if err := e.store.MarkInvoiceSent(ctx, inv.ID, e.now()); err != nil {
		return e.failRun(ctx, r, res, err)
	}

	r.Complete(inv.ID, carried)
	if err := e.store.UpdateRun(ctx, r); err != nil {
		return e.failRun(ctx, r, res, err)
	}

	e.plugins.EmitInvoiceDispatched(ctx, inv)
	e.plugins.EmitRunSent(ctx, r)

	e.logger.Info("billing run sent",
		"vendor", prof.VendorID,
		"period", period.Label,
		"invoice", inv.Number,
		"total", inv.Total.String(),
		"carried_forward", carried.String(),
		"items", len(r.SelectedItems),
	)

	res.Status = run.ResultSent
	res.InvoiceID = inv.ID
	res.InvoiceTotal = inv.Total
	res.CarriedForward = carried
	if res.ItemsBilled == 0 {
		res.ItemsBilled = len(r.SelectedItems)
	}
	return res
}

// resumeDispatch finishes a run that crashed between invoice creation
// and dispatch. The invoice and item locks are intact.
func (e *Engine) resumeDispatch(ctx context.Context, prof *profile.Profile, period run.Period, r *run.Run, res run.VendorResult) run.VendorResult {
	inv, err := e.store.GetInvoice(ctx, r.InvoiceID)
	if err != nil {
		return e.failRun(ctx, r, res, err)
	}

	// Whatever is still unbilled now is what carries forward.
	carried := types.Zero(prof.Currency)
	unbilled, err := e.store.ListItemsByStatus(ctx, prof.VendorID, billable.StatusUnbilled)
	if err != nil {
		return e.failRun(ctx, r, res, err)
	}
	for _, item := range unbilled {
		carried = carried.Add(item.IncTax())
	}

	e.logger.Info("resuming billing run at dispatch",
		"vendor", prof.VendorID,
		"period", period.Label,
		"invoice", inv.Number,
	)
	return e.finishRun(ctx, prof, period, r, inv, res, carried)
}

// admitRun creates the run row for (vendor, period), or classifies the
// one that already exists.
func (e *Engine) admitRun(ctx context.Context, prof *profile.Profile, period run.Period) (*run.Admission, error) {
	existing, err := e.store.GetRunByPeriod(ctx, prof.VendorID, period.Label)
	switch {
	case err == nil:
		return e.recoverRun(ctx, prof, period, existing)
	case IsNotFound(err):
	default:
		return nil, err
	}

	r := run.New(prof.VendorID, period.Label, prof.Currency)
	if err := e.store.CreateRun(ctx, r); err != nil {
		if IsConflict(err) {
			// Lost a race to a concurrent sweep; adopt its run.
			existing, getErr := e.store.GetRunByPeriod(ctx, prof.VendorID, period.Label)
			if getErr != nil {
				return nil, getErr
			}
			return e.recoverRun(ctx, prof, period, existing)
		}
		return nil, err
	}
	return &run.Admission{Outcome: run.AdmissionCreated, Run: r}, nil
}

// recoverRun classifies an existing run row. Sent runs end the story;
// processing and failed runs are picked back up.
func (e *Engine) recoverRun(ctx context.Context, prof *profile.Profile, period run.Period, existing *run.Run) (*run.Admission, error) {
	if existing.Status == run.StatusSent {
		return &run.Admission{Outcome: run.AdmissionAlreadySent, Run: existing}, nil
	}

	var released int64
	if existing.InvoiceID.IsNil() {
		// No invoice was created, so the old locks are worthless.
		var err error
		released, err = e.store.ReleasePending(ctx, existing.ID)
		if err != nil {
			return nil, err
		}
		existing.SelectedItems = nil
	}

	existing.Status = run.StatusProcessing
	existing.ErrorMessage = ""
	existing.StartedAt = e.now()
	existing.CompletedAt = nil
	existing.Touch()
	if err := e.store.UpdateRun(ctx, existing); err != nil {
		return nil, err
	}

	e.plugins.EmitRunRecovered(ctx, prof.VendorID, period.Label, released)
	e.logger.Info("recovered interrupted billing run",
		"vendor", prof.VendorID,
		"period", period.Label,
		"released", released,
	)
	return &run.Admission{Outcome: run.AdmissionRecovered, Run: existing}, nil
}

// projectBalance assembles the balance projection snapshot for a
// vendor around the invoice being issued. extra carries items that
// count as owed but no longer scan as unbilled.
func (e *Engine) projectBalance(ctx context.Context, prof *profile.Profile, period run.Period, invoiceTotal types.Money, extra []billable.Item) (statement.Projection, error) {
	in := statement.Input{
		Currency:          prof.Currency,
		BilledOutstanding: make(map[string]types.Money),
		Unbilled:          make(map[string]types.Money),
		InvoiceTotal:      invoiceTotal,
		MonthlyCap:        prof.MonthlyCap,
		From:              period.End,
	}

	open, err := e.store.ListOutstandingInvoices(ctx, prof.VendorID)
	if err != nil {
		return statement.Projection{}, err
	}
	for _, inv := range open {
		in.OpenBalances = append(in.OpenBalances, inv.Balance())
		items, err := e.store.ListItemsByInvoice(ctx, inv.ID)
		if err != nil {
			return statement.Projection{}, err
		}
		accumulate(in.BilledOutstanding, items, prof.Currency)
	}

	unbilled, err := e.store.ListItemsByStatus(ctx, prof.VendorID, billable.StatusUnbilled)
	if err != nil {
		return statement.Projection{}, err
	}
	accumulate(in.Unbilled, unbilled, prof.Currency)
	accumulate(in.Unbilled, extra, prof.Currency)

	return statement.Project(in), nil
}

// accumulate groups items' inc-tax value by project.
func accumulate(into map[string]types.Money, items []billable.Item, currency string) {
	for _, item := range items {
		cur, ok := into[item.Project()]
		if !ok {
			cur = types.Zero(currency)
		}
		into[item.Project()] = cur.Add(item.IncTax())
	}
}

// dispatch hands an invoice to the configured dispatcher. Without one
// the invoice is considered delivered.
func (e *Engine) dispatch(ctx context.Context, inv *invoice.Invoice) error {
	if e.dispatcher == nil {
		e.logger.Debug("no dispatcher configured, invoice marked sent locally",
			"invoice", inv.Number,
		)
		return nil
	}
	return e.dispatcher.Dispatch(ctx, inv)
}

// failRun releases the run's locks, marks it failed, and shapes the
// vendor result.
func (e *Engine) failRun(ctx context.Context, r *run.Run, res run.VendorResult, cause error) run.VendorResult {
	_, _ = e.store.ReleasePending(ctx, r.ID) //nolint:errcheck // best-effort lock release on failure

	r.Fail(cause.Error())
	_ = e.store.UpdateRun(ctx, r) //nolint:errcheck // the failure itself is what we report

	e.plugins.EmitRunFailed(ctx, res.VendorID, res.PeriodLabel, cause)
	e.logger.Error("billing run failed",
		"vendor", res.VendorID,
		"period", res.PeriodLabel,
		"error", cause,
	)

	res.Status = run.ResultFailed
	res.Reason = cause.Error()
	return res
}

func (e *Engine) skipResult(ctx context.Context, res run.VendorResult, reason string) run.VendorResult {
	e.plugins.EmitRunSkipped(ctx, res.VendorID, res.PeriodLabel, reason)
	res.Status = run.ResultSkipped
	res.Reason = reason
	return res
}

// ──────────────────────────────────────────────────
// Preview
// ──────────────────────────────────────────────────

// Preview is a dry billing run: what an invoice for the period would
// contain, without creating a run, locking items, or persisting a
// split.
type Preview struct {
	VendorID       string                `json:"vendor_id"`
	PeriodLabel    string                `json:"period_label"`
	Draft          *invoice.Draft        `json:"draft"`
	Totals         invoice.Totals        `json:"totals"`
	SplitPlanned   bool                  `json:"split_planned"`
	DeferredIncTax types.Money           `json:"deferred_inc_tax"`
	Projection     *statement.Projection `json:"projection,omitempty"`
}

// PreviewRun computes what a billing run would produce for one vendor.
// Recurring charges for the period are instantiated (they are real
// unbilled items either way), but nothing else is written.
func (e *Engine) PreviewRun(ctx context.Context, vendorID string, opts RunOptions) (*Preview, error) {
	prof, err := e.store.GetProfile(ctx, vendorID)
	if err != nil {
		return nil, err
	}
	if !prof.Active {
		return nil, ErrProfileInactive
	}

	period := run.PreviousPeriod(e.now())
	if opts.Period != nil {
		period = *opts.Period
	}

	if _, err := e.ensureChargeInstances(ctx, vendorID, period.Label); err != nil {
		return nil, err
	}

	candidates, err := e.loadCandidates(ctx, vendorID, period)
	if err != nil {
		return nil, err
	}

	var capAmount *types.Money
	if prof.Capped() {
		capAmount = prof.MonthlyCap
	}
	alloc, err := allocator.Allocate(candidates, capAmount)
	if err != nil {
		return nil, err
	}

	draft, err := e.buildDraft(ctx, prof, period, alloc, nil)
	if err != nil {
		return nil, err
	}
	totals := draft.Totalize()

	p := &Preview{
		VendorID:       vendorID,
		PeriodLabel:    period.Label,
		Draft:          draft,
		Totals:         totals,
		SplitPlanned:   alloc.Split != nil,
		DeferredIncTax: types.Zero(prof.Currency),
	}
	for _, item := range alloc.Deferred {
		p.DeferredIncTax = p.DeferredIncTax.Add(item.IncTax())
	}

	if prof.Capped() || prof.Mode == profile.ModeStatement {
		proj, err := e.projectBalance(ctx, prof, period, totals.Total, nil)
		if err != nil {
			return nil, err
		}
		draft.Memo = append(draft.Memo, proj.MemoLines()...)
		p.Projection = &proj
	}

	return p, nil
}
