// Package task defines the identity and classification of stream-processing
// tasks.
//
// A task owns exactly one partition's worth of state and processing. Its
// identity is the pair (group, partition), rendered as "group_partition" in
// directory names, checkpoint paths and diagnostics.
package task

import (
	"fmt"
	"strconv"
	"strings"
)

// ID uniquely identifies a task as a (group, partition) pair.
//
// IDs are totally ordered: first by group, then by partition. The zero value
// (0,0) is a valid task id.
type ID struct {
	// Group identifies the sub-topology this task executes.
	Group int32

	// Partition is the input partition index assigned to this task.
	Partition int32
}

// NewID creates a task ID from a group and partition index.
func NewID(group, partition int32) ID {
	return ID{Group: group, Partition: partition}
}

// String renders the id in its canonical "group_partition" form.
// This form is used for state directory names and all diagnostics.
func (id ID) String() string {
	return fmt.Sprintf("%d_%d", id.Group, id.Partition)
}

// Compare returns -1, 0 or +1 ordering ids by group, then partition.
func (id ID) Compare(other ID) int {
	switch {
	case id.Group < other.Group:
		return -1
	case id.Group > other.Group:
		return 1
	case id.Partition < other.Partition:
		return -1
	case id.Partition > other.Partition:
		return 1
	default:
		return 0
	}
}

// Less reports whether id orders before other.
func (id ID) Less(other ID) bool {
	return id.Compare(other) < 0
}

// ParseID parses the canonical "group_partition" form back into an ID.
//
// Returns an error if the string is not two non-negative integers joined by
// a single underscore.
func ParseID(s string) (ID, error) {
	idx := strings.LastIndex(s, "_")
	if idx <= 0 || idx == len(s)-1 {
		return ID{}, fmt.Errorf("invalid task id %q: expected form \"group_partition\"", s)
	}

	group, err := strconv.ParseInt(s[:idx], 10, 32)
	if err != nil {
		return ID{}, fmt.Errorf("invalid task id %q: bad group: %w", s, err)
	}
	partition, err := strconv.ParseInt(s[idx+1:], 10, 32)
	if err != nil {
		return ID{}, fmt.Errorf("invalid task id %q: bad partition: %w", s, err)
	}
	if group < 0 || partition < 0 {
		return ID{}, fmt.Errorf("invalid task id %q: group and partition must be non-negative", s)
	}

	return ID{Group: int32(group), Partition: int32(partition)}, nil
}

// Type classifies how a task participates in processing.
type Type int

const (
	// Active tasks process records and own the authoritative state copy.
	Active Type = iota

	// Standby tasks maintain a warm replica of an active task's state.
	Standby
)

// String returns the upper-case name used in log output.
func (t Type) String() string {
	switch t {
	case Active:
		return "ACTIVE"
	case Standby:
		return "STANDBY"
	default:
		return "UNKNOWN"
	}
}
