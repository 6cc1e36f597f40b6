package domain

import (
	"errors"
	"fmt"
)

// Taxonomy sentinels. Every failure the runtime surfaces to a user wraps
// exactly one of these so that KindOf and ErrorCodeOf can classify it.
var (
	ErrConfiguration           = fmt.Errorf("configuration error")
	ErrCredentialListingFailed = fmt.Errorf("credential listing failed")
	ErrCredentialInvalid       = fmt.Errorf("credential invalid")
	ErrToolProviderUnavailable = fmt.Errorf("tool provider unavailable")
	ErrPlannerCompileFailed    = fmt.Errorf("planner compile failed")
	ErrPlannerRuntime          = fmt.Errorf("planner runtime error")
	ErrTurnTimeout             = fmt.Errorf("turn timed out")
)

// Sentinel errors for the domain layer. Each wraps a taxonomy sentinel.
var (
	ErrMintToolMissing       = fmt.Errorf("minting tool missing: %w", ErrConfiguration)
	ErrProviderNotConfigured = fmt.Errorf("provider tool server not configured: %w", ErrToolProviderUnavailable)
	ErrSessionNotInitialized = fmt.Errorf("session not initialized: %w", ErrConfiguration)
	ErrNoBinding             = fmt.Errorf("no credential bound")
	ErrUnknownProvider       = fmt.Errorf("unknown cloud provider: %w", ErrConfiguration)
	ErrToolNotFound          = fmt.Errorf("tool not found")
	ErrToolApprovalRequired  = fmt.Errorf("tool requires approval")
	ErrToolApprovalDenied    = fmt.Errorf("tool approval denied")
	ErrMaxSteps              = fmt.Errorf("planner reached step budget: %w", ErrPlannerRuntime)
	ErrRecursionLimit        = fmt.Errorf("planner reached recursion limit: %w", ErrPlannerRuntime)

	// Resilience errors raised by LLM adapters.
	ErrRateLimit    = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid  = fmt.Errorf("authentication failed")
	ErrLLMFailure   = fmt.Errorf("llm call failed")
	ErrCircuitOpen  = fmt.Errorf("circuit open: %w", ErrToolProviderUnavailable)
	ErrMintThrottle = fmt.Errorf("credential mint throttled: %w", ErrToolProviderUnavailable)
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Manager.CombinedTools")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsRetryableError reports whether err is a transient error that may succeed on retry.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrLLMFailure)
}

// Kind is the taxonomy name recorded in LastError.Type.
type Kind string

const (
	KindUnknown                 Kind = "Unknown"
	KindConfiguration           Kind = "ConfigurationError"
	KindCredentialListingFailed Kind = "CredentialListingFailed"
	KindCredentialInvalid       Kind = "CredentialInvalid"
	KindToolProviderUnavailable Kind = "ToolProviderUnavailable"
	KindPlannerCompileFailed    Kind = "PlannerCompileFailed"
	KindPlannerRuntime          Kind = "PlannerRuntimeError"
	KindTurnTimeout             Kind = "TurnTimeout"
)

// kindOrder is checked in order so that the most specific kind wins when an
// error chain carries more than one taxonomy sentinel.
var kindOrder = []struct {
	sentinel error
	kind     Kind
}{
	{ErrTurnTimeout, KindTurnTimeout},
	{ErrCredentialInvalid, KindCredentialInvalid},
	{ErrCredentialListingFailed, KindCredentialListingFailed},
	{ErrPlannerCompileFailed, KindPlannerCompileFailed},
	{ErrPlannerRuntime, KindPlannerRuntime},
	{ErrToolProviderUnavailable, KindToolProviderUnavailable},
	{ErrConfiguration, KindConfiguration},
}

// KindOf classifies err into the runtime error taxonomy.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for _, k := range kindOrder {
		if errors.Is(err, k.sentinel) {
			return k.kind
		}
	}
	return KindUnknown
}

// ErrorCode is a machine-parseable error category for monitoring and alerting.
type ErrorCode string

const (
	CodeUnknown                 ErrorCode = "UNKNOWN"
	CodeConfiguration           ErrorCode = "CONFIGURATION"
	CodeCredentialListingFailed ErrorCode = "CREDENTIAL_LISTING_FAILED"
	CodeCredentialInvalid       ErrorCode = "CREDENTIAL_INVALID"
	CodeToolProviderUnavailable ErrorCode = "TOOL_PROVIDER_UNAVAILABLE"
	CodePlannerCompileFailed    ErrorCode = "PLANNER_COMPILE_FAILED"
	CodePlannerRuntime          ErrorCode = "PLANNER_RUNTIME"
	CodeTurnTimeout             ErrorCode = "TURN_TIMEOUT"
	CodeMintToolMissing         ErrorCode = "MINT_TOOL_MISSING"
	CodeProviderNotConfigured   ErrorCode = "PROVIDER_NOT_CONFIGURED"
	CodeSessionNotInitialized   ErrorCode = "SESSION_NOT_INITIALIZED"
	CodeNoBinding               ErrorCode = "NO_BINDING"
	CodeUnknownProvider         ErrorCode = "UNKNOWN_PROVIDER"
	CodeToolNotFound            ErrorCode = "TOOL_NOT_FOUND"
	CodeToolApprovalRequired    ErrorCode = "TOOL_APPROVAL_REQUIRED"
	CodeToolApprovalDenied      ErrorCode = "TOOL_APPROVAL_DENIED"
	CodeMaxSteps                ErrorCode = "MAX_STEPS"
	CodeRecursionLimit          ErrorCode = "RECURSION_LIMIT"
	CodeRateLimit               ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid             ErrorCode = "AUTH_INVALID"
	CodeLLMFailure              ErrorCode = "LLM_FAILURE"
	CodeCircuitOpen             ErrorCode = "CIRCUIT_OPEN"
	CodeMintThrottle            ErrorCode = "MINT_THROTTLE"
)

// specificCodes are matched before the taxonomy fallbacks because each of
// them wraps a taxonomy sentinel.
var specificCodes = []struct {
	sentinel error
	code     ErrorCode
}{
	{ErrMintToolMissing, CodeMintToolMissing},
	{ErrProviderNotConfigured, CodeProviderNotConfigured},
	{ErrSessionNotInitialized, CodeSessionNotInitialized},
	{ErrUnknownProvider, CodeUnknownProvider},
	{ErrMaxSteps, CodeMaxSteps},
	{ErrRecursionLimit, CodeRecursionLimit},
	{ErrCircuitOpen, CodeCircuitOpen},
	{ErrMintThrottle, CodeMintThrottle},
	{ErrNoBinding, CodeNoBinding},
	{ErrToolNotFound, CodeToolNotFound},
	{ErrToolApprovalRequired, CodeToolApprovalRequired},
	{ErrToolApprovalDenied, CodeToolApprovalDenied},
	{ErrRateLimit, CodeRateLimit},
	{ErrAuthInvalid, CodeAuthInvalid},
	{ErrLLMFailure, CodeLLMFailure},
}

var kindCodes = map[Kind]ErrorCode{
	KindConfiguration:           CodeConfiguration,
	KindCredentialListingFailed: CodeCredentialListingFailed,
	KindCredentialInvalid:       CodeCredentialInvalid,
	KindToolProviderUnavailable: CodeToolProviderUnavailable,
	KindPlannerCompileFailed:    CodePlannerCompileFailed,
	KindPlannerRuntime:          CodePlannerRuntime,
	KindTurnTimeout:             CodeTurnTimeout,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// Specific sentinels win over the taxonomy kind they wrap.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	for _, s := range specificCodes {
		if errors.Is(err, s.sentinel) {
			return s.code
		}
	}
	if code, ok := kindCodes[KindOf(err)]; ok {
		return code
	}
	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	return ErrorCodeOf(e.Err)
}
