package topology

import (
	"errors"
	"fmt"
)

// Domain errors for the topology package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, topology.ErrDuplicateShardID) {
//	    // reject the configuration
//	}
var (
	// ErrValidation is returned when a configuration field is missing or malformed.
	ErrValidation = errors.New("topology: invalid configuration")

	// ErrDuplicateSpace is returned when a space name is loaded twice into one registry.
	ErrDuplicateSpace = errors.New("topology: duplicate space")

	// ErrDuplicatePeer is returned when two peers of a space share a name.
	ErrDuplicatePeer = errors.New("topology: duplicate peer")

	// ErrDuplicateShardID is returned when a shard id is already loaded in the space.
	ErrDuplicateShardID = errors.New("topology: duplicate shard id")

	// ErrDuplicateShardAlias is returned when a shard alias is already loaded in the space.
	ErrDuplicateShardAlias = errors.New("topology: duplicate shard alias")

	// ErrDuplicateEntryAlias is returned when an entry alias already exists in the shard.
	ErrDuplicateEntryAlias = errors.New("topology: duplicate entry alias")

	// ErrUpgrade is matched by every *UpgradeError.
	ErrUpgrade = errors.New("topology: upgrade failed")

	// ErrUnknownStep is returned when an upgrade references a step missing from the catalogue.
	ErrUnknownStep = errors.New("topology: unknown upgrade step")

	// ErrDuplicateStep is returned when a step name is registered twice in a catalogue.
	ErrDuplicateStep = errors.New("topology: duplicate upgrade step")

	// ErrSpaceNotFound is returned when a space name is not loaded.
	ErrSpaceNotFound = errors.New("topology: space not found")

	// ErrShardNotFound is returned when a shard id or alias is not loaded.
	ErrShardNotFound = errors.New("topology: shard not found")

	// ErrEntryNotFound is returned when an entry alias does not exist in the shard.
	ErrEntryNotFound = errors.New("topology: entry not found")

	// ErrTxClosed is returned when a step uses its transaction after commit or discard.
	ErrTxClosed = errors.New("topology: transaction closed")
)

// UpgradeError describes a failed upgrade step.
//
// It carries the identifying context an operator needs to retry the step,
// and matches both ErrUpgrade and the underlying cause with errors.Is.
type UpgradeError struct {
	Space      string
	ShardID    int
	ShardAlias string
	Step       int
	StepName   string
	Err        error
}

func (e *UpgradeError) Error() string {
	return fmt.Sprintf("topology: upgrade step %d (%s) of shard %d (%s) in space %q failed: %v",
		e.Step, e.StepName, e.ShardID, e.ShardAlias, e.Space, e.Err)
}

// Unwrap exposes both the ErrUpgrade sentinel and the step's cause.
func (e *UpgradeError) Unwrap() []error {
	return []error{ErrUpgrade, e.Err}
}
