package deployer

import (
	"fmt"
	"strings"
)

// ValidationError The manifest cannot be applied to the service. Nothing was written.
type ValidationError struct {
	ServiceName       string
	Reason            string
	UnknownContainers []string
}

func (e *ValidationError) Error() string {
	if len(e.UnknownContainers) > 0 {
		return fmt.Sprintf("deploy %s: %s: %s", e.ServiceName, e.Reason, strings.Join(e.UnknownContainers, ", "))
	}
	return fmt.Sprintf("deploy %s: %s", e.ServiceName, e.Reason)
}

// RolloutError The new revision was written but replacement did not complete. The counts describe
// the partially rolled out state left in place.
type RolloutError struct {
	ServiceName string
	Reason      string
	Desired     int32
	Updated     int32
	Available   int32
	Unavailable int32
}

func (e *RolloutError) Error() string {
	return fmt.Sprintf("rollout of %s failed: %s (desired %d, updated %d, available %d, unavailable %d)",
		e.ServiceName, e.Reason, e.Desired, e.Updated, e.Available, e.Unavailable)
}
