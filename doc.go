// Package billrun provides a periodic vendor billing engine for Go
// applications.
//
// Billrun is designed as a library, not a service. Import it directly
// into your Go application and drive it from your own scheduler. It
// provides:
//
//   - Monthly billing runs with crash-safe, idempotent recovery
//   - Cap-limited allocation with exact boundary-item splitting
//   - Recurring charges, billable time, and mileage in one pipeline
//   - Itemized and statement-style invoice generation
//   - Statement balance projection and cap-sized payment plans
//   - Pluggable invoice dispatch and lifecycle plugins
//
// # Quick Start
//
// Create an engine with your preferred store:
//
//	import (
//	    "github.com/xraph/billrun"
//	    "github.com/xraph/billrun/store/postgres"
//	)
//
//	// Initialize store
//	store, err := postgres.New(databaseURL)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Create engine
//	e := billrun.New(store)
//
//	// Start the engine (runs migrations, initializes plugins)
//	if err := e.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer e.Stop()
//
// # Core Concepts
//
// Profiles configure how each vendor is billed:
//
//	prof := &profile.Profile{
//	    VendorID:   "vendor-acme",
//	    Currency:   "USD",
//	    Mode:       profile.ModeItemized,
//	    MonthlyCap: &cap, // inc-tax; nil means uncapped
//	    Active:     true,
//	}
//
// Billable items accumulate between runs: recurring charge instances,
// time entries, and mileage entries. A billing run sweeps every vendor
// for the month just closed:
//
//	results, err := e.RunBilling(ctx, billrun.RunOptions{})
//
// Each vendor's run allocates unbilled items under the monthly cap,
// splitting at most one boundary item at its smallest divisible unit,
// and defers the rest to the next period. The run is idempotent per
// (vendor, period): re-running a sent period does nothing, and an
// interrupted run is recovered instead of duplicated.
//
// # Money
//
// All monetary calculations use integer arithmetic in the smallest
// currency unit (cents for USD, pence for GBP). Tax is applied at a
// single rounding point per item, so split items always conserve value
// to the cent.
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	run_01h2xcejqtf2nbrexx3vqjhp41   // Billing run ID
//	inv_01h455vb4pex5vsknk084sn02q   // Invoice ID
//	time_01h455vb4pex5vsknk084sn02q  // Time entry ID
//
// TypeIDs are K-sortable, making them ideal for database indexes and
// providing natural time-ordering of entities.
package billrun
