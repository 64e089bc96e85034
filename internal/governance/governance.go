// Package governance implements the pipeline's audit trail: an append-only
// log of agent decisions, validation outcomes, and failures, with a
// summarized export suitable for a run's artifacts directory.
package governance

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Decision records one agent action and the rationale behind it.
type Decision struct {
	Timestamp  time.Time              `json:"timestamp"`
	Agent      string                 `json:"agent"`
	Action     string                 `json:"action"`
	Rationale  string                 `json:"rationale"`
	Confidence float64                `json:"confidence"`
	InputsUsed map[string]interface{} `json:"inputs_used,omitempty"`
}

// Validation records one pass/fail check against a target.
type Validation struct {
	Timestamp time.Time `json:"timestamp"`
	Validator string    `json:"validator"`
	Target    string    `json:"target"`
	Passed    bool      `json:"passed"`
	Reason    string    `json:"reason"`
}

// Failure records a fatal or iteration-scoped error condition. This
// variant has no equivalent in the original governance log — the original
// relies on validations alone — and is added because the controller's
// stopping rules need a durable record of *why* a run aborted, not just
// that some check didn't pass.
type Failure struct {
	Timestamp time.Time `json:"timestamp"`
	ReasonCode string   `json:"reason_code"`
	Detail    string    `json:"detail"`
	Iteration int       `json:"iteration"`
}

// AuditTrail is the serializable summary of a run's governance log.
type AuditTrail struct {
	GovernanceVersion string       `json:"governance_version"`
	PipelineStart     time.Time    `json:"pipeline_start"`
	Decisions         []Decision   `json:"decisions"`
	Validations       []Validation `json:"validations"`
	Failures          []Failure    `json:"failures"`
	Summary           Summary      `json:"summary"`
}

// Summary is the audit trail's top-level verdict.
type Summary struct {
	AgentsInvolved    []string `json:"agents_involved"`
	TotalDecisions    int      `json:"total_decisions"`
	AverageConfidence float64  `json:"average_confidence"`
	FailedValidations int      `json:"failed_validations"`
	Status            string   `json:"status"` // "PASS" or "REVIEW_NEEDED"
}

// Log is an append-only, mutex-guarded record of a single pipeline run's
// decisions, validations, and failures.
type Log struct {
	mu          sync.Mutex
	decisions   []Decision
	validations []Validation
	failures    []Failure
	start       time.Time
}

// New returns a Log with its clock started now.
func New() *Log {
	return &Log{start: time.Now()}
}

// LogDecision appends a Decision record and returns it.
func (l *Log) LogDecision(agent, action, rationale string, confidence float64, inputsUsed map[string]interface{}) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()
	d := Decision{
		Timestamp:  time.Now(),
		Agent:      agent,
		Action:     action,
		Rationale:  rationale,
		Confidence: confidence,
		InputsUsed: inputsUsed,
	}
	l.decisions = append(l.decisions, d)
	return d
}

// LogValidation appends a Validation record and returns it.
func (l *Log) LogValidation(validator, target string, passed bool, reason string) Validation {
	l.mu.Lock()
	defer l.mu.Unlock()
	v := Validation{
		Timestamp: time.Now(),
		Validator: validator,
		Target:    target,
		Passed:    passed,
		Reason:    reason,
	}
	l.validations = append(l.validations, v)
	return v
}

// LogFailure appends a Failure record and returns it.
func (l *Log) LogFailure(reasonCode, detail string, iteration int) Failure {
	l.mu.Lock()
	defer l.mu.Unlock()
	f := Failure{
		Timestamp:  time.Now(),
		ReasonCode: reasonCode,
		Detail:     detail,
		Iteration:  iteration,
	}
	l.failures = append(l.failures, f)
	return f
}

// GetAuditTrail computes the complete, serializable audit trail as of now.
func (l *Log) GetAuditTrail() AuditTrail {
	l.mu.Lock()
	defer l.mu.Unlock()

	agentSet := make(map[string]struct{})
	var confSum float64
	for _, d := range l.decisions {
		agentSet[d.Agent] = struct{}{}
		confSum += d.Confidence
	}
	agents := make([]string, 0, len(agentSet))
	for a := range agentSet {
		agents = append(agents, a)
	}
	sort.Strings(agents)

	avgConf := 0.0
	if len(l.decisions) > 0 {
		avgConf = round2(confSum / float64(len(l.decisions)))
	}

	failed := 0
	for _, v := range l.validations {
		if !v.Passed {
			failed++
		}
	}

	status := "PASS"
	if failed > 0 || len(l.failures) > 0 {
		status = "REVIEW_NEEDED"
	}

	return AuditTrail{
		GovernanceVersion: "1.0",
		PipelineStart:     l.start,
		Decisions:         append([]Decision(nil), l.decisions...),
		Validations:       append([]Validation(nil), l.validations...),
		Failures:          append([]Failure(nil), l.failures...),
		Summary: Summary{
			AgentsInvolved:    agents,
			TotalDecisions:    len(l.decisions),
			AverageConfidence: avgConf,
			FailedValidations: failed,
			Status:            status,
		},
	}
}

// ExportAuditTrail writes the audit trail as indented JSON to outputPath,
// creating parent directories as needed.
func (l *Log) ExportAuditTrail(outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(l.GetAuditTrail(), "", "  ")
	if err != nil {
		return err
	}
	//nolint:gosec // G306: governance artifact is meant to be readable by the operator
	return os.WriteFile(outputPath, data, 0644)
}

// Reset clears the log for a new run.
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.decisions = nil
	l.validations = nil
	l.failures = nil
	l.start = time.Now()
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}
