package auditlog

import "context"

// AuditLogger is the context-aware audit logging interface used throughout
// the pipeline. It supersedes StructuredLogger's event-based API with an
// entry-based one that carries operation/status/duration semantics the
// governance trail needs, while keeping the legacy (context-free) methods
// for call sites that predate context propagation.
type AuditLogger interface {
	// Log records a single audit entry, attaching the correlation ID found
	// in ctx (if any) to the entry's Inputs under "correlation_id".
	Log(ctx context.Context, entry AuditEntry) error

	// LogOp is a convenience wrapper around Log: it derives Status/Message
	// from the given status and error, so callers don't need to construct
	// an AuditEntry by hand for the common "record one operation" case.
	LogOp(ctx context.Context, operation, status string, inputs, outputs map[string]interface{}, err error) error

	// LogLegacy and LogOpLegacy behave like Log/LogOp but without a
	// context, for call sites that have no correlation ID to propagate.
	LogLegacy(entry AuditEntry) error
	LogOpLegacy(operation, status string, inputs, outputs map[string]interface{}, err error) error

	// Close releases any resources held by the logger. Idempotent.
	Close() error
}
