package graph

import (
	"fmt"
	"strings"
)

// MalformedIDError reports a task id that is not dotted-numeric, or a
// duplicate id in the input list.
type MalformedIDError struct {
	ID     string
	Reason string
}

func (e *MalformedIDError) Error() string {
	return fmt.Sprintf("malformed task id %q: %s", e.ID, e.Reason)
}

// DanglingReferenceError reports a body reference to a task id that does not
// exist in the list.
type DanglingReferenceError struct {
	TaskID string
	Ref    string
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("task %q references nonexistent task %q", e.TaskID, e.Ref)
}

// CycleError reports a dependency cycle with the offending path.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("circular dependency detected: %s", strings.Join(e.Path, " -> "))
}
