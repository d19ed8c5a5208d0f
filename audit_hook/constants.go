package audithook

// Action constants for audit events.
const (
	// Run actions
	ActionRunStarted   = "run.started"
	ActionRunRecovered = "run.recovered"
	ActionRunSkipped   = "run.skipped"
	ActionRunSent      = "run.sent"
	ActionRunFailed    = "run.failed"

	// Item actions
	ActionItemsLocked  = "items.locked"
	ActionItemSplit    = "item.split"
	ActionCarryForward = "items.carry_forward"

	// Invoice actions
	ActionInvoiceCreated    = "invoice.created"
	ActionInvoiceDispatched = "invoice.dispatched"
	ActionPaymentRecorded   = "payment.recorded"
)

// Resource constants for audit events.
const (
	ResourceRun     = "run"
	ResourceItem    = "item"
	ResourceInvoice = "invoice"
	ResourcePayment = "payment"
)

// Category constants for audit events.
const (
	CategoryBilling = "billing"
	CategoryPayment = "payment"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
