package auditlog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/loopstack/pipeline/internal/llm"
	"github.com/loopstack/pipeline/internal/logutil"
)

// FileAuditLogger writes one JSON-encoded AuditEntry per line to a file,
// flushing immediately so the trail survives a crash of the process writing
// it. Safe for concurrent use.
type FileAuditLogger struct {
	mu     sync.Mutex
	file   *os.File
	logger logutil.LoggerInterface
	closed bool
}

// NewFileAuditLogger opens (creating if necessary) logPath for append and
// returns a logger that writes audit entries to it. The given logger
// receives diagnostic messages about the audit log's own lifecycle.
func NewFileAuditLogger(logPath string, logger logutil.LoggerInterface) (*FileAuditLogger, error) {
	//nolint:gosec // G304: log path is operator-controlled configuration, not user input
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		logger.Error("failed to open audit log file %q: %v", logPath, err)
		return nil, fmt.Errorf("failed to open audit log file %q: %w", logPath, err)
	}

	logger.Info("audit log opened at %q", logPath)
	return &FileAuditLogger{file: f, logger: logger}, nil
}

// Log writes entry as a single JSON line, stamping Timestamp if unset and
// attaching the correlation ID from ctx (if any).
func (l *FileAuditLogger) Log(ctx context.Context, entry AuditEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if id := logutil.GetCorrelationID(ctx); id != "" {
		if entry.Inputs == nil {
			entry.Inputs = make(map[string]interface{})
		}
		entry.Inputs["correlation_id"] = id
	}

	data, err := json.Marshal(entry)
	if err != nil {
		l.logger.Error("Failed to marshal audit entry to JSON: %v, Entry: %+v", err, entry)
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	if _, err := l.file.Write(data); err != nil {
		l.logger.Error("failed to write audit entry: %v", err)
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

// LogLegacy logs entry without a context.
func (l *FileAuditLogger) LogLegacy(entry AuditEntry) error {
	return l.Log(context.Background(), entry)
}

func errorInfoFor(err error) *ErrorInfo {
	if err == nil {
		return nil
	}
	errType := "GeneralError"
	if cat, ok := llm.IsCategorizedError(err); ok {
		errType = fmt.Sprintf("Error:%s", cat.Category().String())
	}
	return &ErrorInfo{Message: err.Error(), Type: errType}
}

func messageFor(operation, status string) string {
	switch status {
	case "Success":
		return operation + " completed successfully"
	case "InProgress":
		return operation + " started"
	case "Failure":
		return operation + " failed"
	default:
		return operation + " - " + status
	}
}

// LogOp records one operation's outcome, deriving Message from operation and
// status and Error from err (if non-nil).
func (l *FileAuditLogger) LogOp(ctx context.Context, operation, status string, inputs, outputs map[string]interface{}, err error) error {
	return l.Log(ctx, AuditEntry{
		Operation: operation,
		Status:    status,
		Message:   messageFor(operation, status),
		Inputs:    inputs,
		Outputs:   outputs,
		Error:     errorInfoFor(err),
	})
}

// LogOpLegacy is LogOp without a context.
func (l *FileAuditLogger) LogOpLegacy(operation, status string, inputs, outputs map[string]interface{}, err error) error {
	return l.LogOp(context.Background(), operation, status, inputs, outputs, err)
}

// Close closes the underlying file. Safe to call more than once.
func (l *FileAuditLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.file.Close()
}
