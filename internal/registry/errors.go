package registry

import "errors"

// Sentinel errors for the registry layer.
// These allow handlers to check error types with errors.Is() instead of string matching.
var (
	ErrInvalidSchema           = errors.New("invalid schema")
	ErrUnsupportedSchemaType   = errors.New("unsupported schema type")
	ErrInvalidRuleSet          = errors.New("invalid ruleSet")
	ErrFailedResolveReferences = errors.New("failed to resolve references")
	ErrReferenceExists         = errors.New("schema is referenced by other schemas")
	ErrInvalidCompatibility    = errors.New("invalid compatibility level")
	ErrInvalidMode             = errors.New("invalid mode")

	// ErrNotLeader is surfaced when a write lands on a non-leader node after
	// leadership was lost mid-operation; the write aborts rather than
	// silently re-forwarding.
	ErrNotLeader = errors.New("not leader")
	// ErrUnknownLeader is surfaced when a follower needs to forward a write
	// but no leader is currently known.
	ErrUnknownLeader = errors.New("no leader known")
	// ErrRequestForwarding is surfaced when forwarding a write to the leader
	// fails at the transport level.
	ErrRequestForwarding = errors.New("failed to forward request to leader")
	// ErrTimeout is surfaced when a log barrier or produce wait exceeds its
	// deadline.
	ErrTimeout = errors.New("operation timed out")
	// ErrStore wraps an unexpected LogStore failure not covered by a more
	// specific sentinel.
	ErrStore = errors.New("log store error")
	// ErrIDGeneration is surfaced when IdGenerator fails to allocate an id,
	// e.g. because it was called before Init.
	ErrIDGeneration = errors.New("id generation error")
	// ErrInitialization is a fatal startup error: LogStore or LeaderElector
	// failed to reach a consistent initial state.
	ErrInitialization = errors.New("initialization error")
	// ErrSchemaTooLarge is surfaced when an encoded record would exceed the
	// log's maximum record size.
	ErrSchemaTooLarge = errors.New("schema too large")
	// ErrOperationNotPermitted names an operation rejected by policy. Nothing
	// in this package returns it: SetMode reports its IMPORT rejections with
	// storage.ErrOperationNotPermitted.
	ErrOperationNotPermitted = errors.New("operation not permitted")
)
