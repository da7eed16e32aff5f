package simulate

import "errors"

// ErrScenarioNotFound is returned by Run when an explicit scenario name
// does not match any entry in the built-in catalog.
var ErrScenarioNotFound = errors.New("scenario not found")
