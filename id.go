package billrun

import "github.com/xraph/billrun/id"

// ID is the primary identifier type for all Billrun entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
