package source_resolver

import (
	"errors"
	"fmt"
)

// ErrNoResults means the query matched nothing the extractor could describe.
var ErrNoResults = errors.New("no results")

// ResolutionError is returned when a query could not be turned into any track.
type ResolutionError struct {
	Query string
	Err   error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %q: %v", e.Query, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

func IsNoResults(err error) bool {
	return errors.Is(err, ErrNoResults)
}
