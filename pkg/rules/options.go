package rules

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/orneryd/graphrule/pkg/graph"
)

// Default traversal guards. They are static backstops against runaway
// variable-length expansion, not user-facing cancellation.
const (
	DefaultMaxPathDepth   = 10
	DefaultMaxPathResults = 1000
)

// IDGenerator allocates fresh node IDs for CreateNode actions.
type IDGenerator func() graph.NodeID

// CounterIDs returns the default generator: prefix plus a monotonic
// counter ("node-1", "node-2", ...).
func CounterIDs(prefix string) IDGenerator {
	var n atomic.Int64
	return func() graph.NodeID {
		return graph.NodeID(fmt.Sprintf("%s-%d", prefix, n.Add(1)))
	}
}

// UUIDIDs returns a generator backed by random UUIDs, for callers that need
// IDs unique across graphs.
func UUIDIDs() IDGenerator {
	return func() graph.NodeID {
		return graph.NodeID(uuid.NewString())
	}
}

// Options carries the engine and matcher tunables.
type Options struct {
	// MaxPathDepth caps the total number of edges on any matched path.
	MaxPathDepth int

	// MaxPathResults truncates path enumeration once this many paths have
	// been produced for one pattern.
	MaxPathResults int

	// CaseSensitiveLabels switches label and type comparison from the
	// default case-insensitive matching to exact matching.
	CaseSensitiveLabels bool

	// CoerceNumerics enables numeric string coercion in comparisons and
	// property constraints ("42" matches 42). Off by default.
	CoerceNumerics bool

	// IDGenerator allocates node IDs for CreateNode actions. Defaults to
	// CounterIDs("node").
	IDGenerator IDGenerator

	// Exec is the default action-execution policy for ExecuteQuery.
	Exec ExecOptions
}

// DefaultOptions returns the standard tunables.
func DefaultOptions() Options {
	return Options{
		MaxPathDepth:   DefaultMaxPathDepth,
		MaxPathResults: DefaultMaxPathResults,
		IDGenerator:    CounterIDs("node"),
	}
}

// normalize fills zero values with defaults.
func (o Options) normalize() Options {
	if o.MaxPathDepth <= 0 {
		o.MaxPathDepth = DefaultMaxPathDepth
	}
	if o.MaxPathResults <= 0 {
		o.MaxPathResults = DefaultMaxPathResults
	}
	if o.IDGenerator == nil {
		o.IDGenerator = CounterIDs("node")
	}
	return o
}
