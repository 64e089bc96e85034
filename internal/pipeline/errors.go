package pipeline

// ErrorKind classifies a condition the controller can encounter outside
// the LLM-client error taxonomy already covered by internal/llm. These are
// pipeline-level outcomes, each with its own recovery policy, not API
// failures.
type ErrorKind int

const (
	// ErrorKindUnknown is the zero value; never assigned deliberately.
	ErrorKindUnknown ErrorKind = iota
	// ErrorKindLLMExhausted means every candidate model was unavailable or
	// every retry round was spent. Fatal to the current call; the
	// controller marks the iteration failed and may retry the next one.
	ErrorKindLLMExhausted
	// ErrorKindLLMRateLimit means a single provider responded with a rate
	// limit; that model cools down while others continue.
	ErrorKindLLMRateLimit
	// ErrorKindParseError means JSON from the LLM could not be parsed;
	// recovered locally with heuristics then best-effort defaults.
	ErrorKindParseError
	// ErrorKindSyntaxInvalid means generated code failed to parse; the
	// implementation agent attempts self-repair before giving up.
	ErrorKindSyntaxInvalid
	// ErrorKindHallucination means generated code references non-existent
	// symbols; one self-repair round is attempted before reverting.
	ErrorKindHallucination
	// ErrorKindCoverageMissing means the test runner produced no coverage
	// file; treated as 0% and the run continues.
	ErrorKindCoverageMissing
	// ErrorKindTimeoutExpired means a subprocess exceeded its deadline; a
	// degenerate result is returned and the caller continues.
	ErrorKindTimeoutExpired
	// ErrorKindDependencyInstallFailed means package installation failed
	// after all retries; logged, and the run continues since tests may
	// still partially run.
	ErrorKindDependencyInstallFailed
	// ErrorKindSafetyBlocked means the prompt safety classifier flagged a
	// prompt; logged, and the pipeline proceeds anyway (advisory only).
	ErrorKindSafetyBlocked
	// ErrorKindConfigMissing means no credentials were configured; a
	// single startup warning is issued and all LLM calls fail fast with
	// ErrorKindLLMExhausted.
	ErrorKindConfigMissing
)

// String names the ErrorKind for logging and governance failure records.
func (k ErrorKind) String() string {
	switch k {
	case ErrorKindLLMExhausted:
		return "LLMExhausted"
	case ErrorKindLLMRateLimit:
		return "LLMRateLimit"
	case ErrorKindParseError:
		return "ParseError"
	case ErrorKindSyntaxInvalid:
		return "SyntaxInvalid"
	case ErrorKindHallucination:
		return "Hallucination"
	case ErrorKindCoverageMissing:
		return "CoverageMissing"
	case ErrorKindTimeoutExpired:
		return "TimeoutExpired"
	case ErrorKindDependencyInstallFailed:
		return "DependencyInstallFailed"
	case ErrorKindSafetyBlocked:
		return "SafetyBlocked"
	case ErrorKindConfigMissing:
		return "ConfigMissing"
	default:
		return "Unknown"
	}
}

// Error wraps a pipeline-level condition with a human message, suitable
// for governance.Log.LogFailure's reason_code/detail pair.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return e.Kind.String() + ": " + e.Message
}

func newError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// decisionConfidence is the governance confidence recorded for an LLM call
// decision: the gateway's preferred candidate answered directly, or it fell
// back to a lower-priority candidate and the decision carries no confidence.
func decisionConfidence(isFallback bool) float64 {
	if isFallback {
		return 0.0
	}
	return 0.85
}
