// Package run models a billing run: one attempt to invoice one vendor
// for one period. Runs are the idempotency anchor of the pipeline —
// (vendor, period) is unique, and re-running converges on the same
// invoice instead of producing a second one.
package run

import (
	"fmt"
	"time"

	"github.com/xraph/billrun/id"
	"github.com/xraph/billrun/types"
)

// Status is the lifecycle state of a billing run.
type Status string

const (
	// StatusProcessing runs hold item locks and may have an invoice
	// drafted but not yet dispatched.
	StatusProcessing Status = "processing"
	// StatusSent runs completed: the invoice was dispatched and items
	// marked billed.
	StatusSent Status = "sent"
	// StatusFailed runs released their locks after an error.
	StatusFailed Status = "failed"
)

// Run is one billing attempt for (vendor, period).
type Run struct {
	types.Entity
	ID          id.RunID     `json:"id"`
	VendorID    string       `json:"vendor_id"`
	PeriodLabel string       `json:"period_label"`
	Status      Status       `json:"status"`
	InvoiceID   id.InvoiceID `json:"invoice_id"`
	// SelectedItems records which item IDs the allocation chose, so a
	// recovered run can be audited against what was actually locked.
	SelectedItems  []string    `json:"selected_items,omitempty"`
	CarriedForward types.Money `json:"carried_forward"`
	ErrorMessage   string      `json:"error_message,omitempty"`
	StartedAt      time.Time   `json:"started_at"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"`
}

// New creates a processing run for the vendor and period.
func New(vendorID, periodLabel, currency string) *Run {
	now := time.Now().UTC()
	return &Run{
		Entity:         types.NewEntity(),
		ID:             id.NewRunID(),
		VendorID:       vendorID,
		PeriodLabel:    periodLabel,
		Status:         StatusProcessing,
		CarriedForward: types.Zero(currency),
		StartedAt:      now,
	}
}

// Complete marks the run sent and stamps completion.
func (r *Run) Complete(invoiceID id.InvoiceID, carried types.Money) {
	now := time.Now().UTC()
	r.Status = StatusSent
	r.InvoiceID = invoiceID
	r.CarriedForward = carried
	r.CompletedAt = &now
	r.Touch()
}

// Fail marks the run failed with a reason.
func (r *Run) Fail(reason string) {
	now := time.Now().UTC()
	r.Status = StatusFailed
	r.ErrorMessage = reason
	r.CompletedAt = &now
	r.Touch()
}

// ──────────────────────────────────────────────────
// Admission
// ──────────────────────────────────────────────────

// AdmissionOutcome says how a run request was admitted.
type AdmissionOutcome string

const (
	// AdmissionCreated means a fresh run row was created; the caller
	// owns the run and must drive it to sent or failed.
	AdmissionCreated AdmissionOutcome = "created"
	// AdmissionRecovered means a stale processing or failed run was
	// found; its locks were released and the run restarts.
	AdmissionRecovered AdmissionOutcome = "recovered"
	// AdmissionAlreadySent means the period was already billed; the
	// caller must not bill again.
	AdmissionAlreadySent AdmissionOutcome = "already_sent"
)

// Admission is the result of trying to start a run.
type Admission struct {
	Outcome AdmissionOutcome
	Run     *Run
}

// ──────────────────────────────────────────────────
// Per-vendor result
// ──────────────────────────────────────────────────

// ResultStatus classifies what a run did for one vendor.
type ResultStatus string

const (
	ResultSent    ResultStatus = "sent"
	ResultSkipped ResultStatus = "skipped"
	ResultFailed  ResultStatus = "failed"
)

// VendorResult is the outcome of one vendor within a billing sweep.
// A failure here never aborts the sweep; other vendors still run.
type VendorResult struct {
	VendorID       string       `json:"vendor_id"`
	PeriodLabel    string       `json:"period_label"`
	Status         ResultStatus `json:"status"`
	Reason         string       `json:"reason,omitempty"`
	InvoiceID      id.InvoiceID `json:"invoice_id"`
	InvoiceTotal   types.Money  `json:"invoice_total"`
	CarriedForward types.Money  `json:"carried_forward"`
	ItemsBilled    int          `json:"items_billed"`
	SplitPerformed bool         `json:"split_performed"`
}

// ──────────────────────────────────────────────────
// Period
// ──────────────────────────────────────────────────

// Period identifies a calendar month billing window.
type Period struct {
	Label string    // "2026-07"
	Start time.Time // first instant of the month, UTC
	End   time.Time // first instant of the next month, UTC
}

// PeriodOf returns the calendar month containing t.
func PeriodOf(t time.Time) Period {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return Period{
		Label: fmt.Sprintf("%04d-%02d", start.Year(), int(start.Month())),
		Start: start,
		End:   start.AddDate(0, 1, 0),
	}
}

// PreviousPeriod returns the month before the one containing t. This
// is the default billing window: runs bill the month just closed.
func PreviousPeriod(t time.Time) Period {
	cur := PeriodOf(t)
	return PeriodOf(cur.Start.AddDate(0, 0, -1))
}

// Closed reports whether the period has fully elapsed at time t.
func (p Period) Closed(t time.Time) bool {
	return !t.UTC().Before(p.End)
}
