package topology

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRouterNotFound is returned when detection does not settle on exactly one router.
	ErrRouterNotFound = errors.New("router not found")
	// ErrClassification is returned for an IPv4 address outside the classful A/B/C ranges.
	ErrClassification = errors.New("address cannot be classified")
)

// RouterNotFoundError carries the state the detector stopped in.
type RouterNotFoundError struct {
	Candidates []string // candidate MACs left when detection stopped
	Iterations int      // refinement rounds executed
}

func (e *RouterNotFoundError) Error() string {
	if len(e.Candidates) == 0 {
		return fmt.Sprintf("%s: no device answered from port 80 or 443 (%d refinement rounds)",
			ErrRouterNotFound, e.Iterations)
	}
	return fmt.Sprintf("%s: %d candidates left after %d refinement rounds [%s]",
		ErrRouterNotFound, len(e.Candidates), e.Iterations, strings.Join(e.Candidates, ", "))
}

func (e *RouterNotFoundError) Unwrap() error {
	return ErrRouterNotFound
}

// ClassificationError reports an address the subnet classifier refused.
type ClassificationError struct {
	Address string
	Reason  string
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("%s: %q: %s", ErrClassification, e.Address, e.Reason)
}

func (e *ClassificationError) Unwrap() error {
	return ErrClassification
}
