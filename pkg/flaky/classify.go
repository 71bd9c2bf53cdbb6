package flaky

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// FailureKind is the classification of an attempt error.
type FailureKind int

const (
	// KindUnknown represents an unclassified (nil) error
	KindUnknown FailureKind = iota
	// KindAssertion represents an expectation failure; eligible for retry
	KindAssertion
	// KindUnexpected represents any other error; aborts retries immediately
	KindUnexpected
)

// String returns the string representation of the FailureKind.
func (k FailureKind) String() string {
	switch k {
	case KindAssertion:
		return "AssertionFailure"
	case KindUnexpected:
		return "UnexpectedException"
	default:
		return "Unknown"
	}
}

// ErrAssertion is the sentinel that tags an error as an expectation failure.
// Test bodies should produce tagged errors via Assertf or MarkAssertion so
// classification is an errors.Is check rather than message sniffing.
var ErrAssertion = errors.New("assertion failure")

// assertionVocabulary is the legacy fallback for untagged errors from
// third-party assertion helpers. Matched case-insensitively against the
// error text.
var assertionVocabulary = []string{"assert", "expect", "tobe", "toequal", "tocontain"}

// Assertf returns an assertion-tagged error with the given message.
func Assertf(format string, args ...any) error {
	return &assertionError{err: fmt.Errorf(format, args...)}
}

// MarkAssertion tags err as an assertion failure without altering its
// message. Returns nil for a nil err; already-tagged errors pass through.
func MarkAssertion(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrAssertion) {
		return err
	}
	return &assertionError{err: err}
}

// assertionError preserves the wrapped error's exact message while carrying
// the ErrAssertion tag.
type assertionError struct {
	err error
}

func (e *assertionError) Error() string { return e.err.Error() }

func (e *assertionError) Unwrap() error { return e.err }

func (e *assertionError) Is(target error) bool { return target == ErrAssertion }

// PanicError wraps a panic recovered from a test body so that resource
// release still runs. The original panic value and stack are preserved.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// ResourceError wraps a session acquisition failure. Setup failures abort
// the run regardless of their message content, so a launch error worded
// like an assertion can never trigger a retry.
type ResourceError struct {
	Err error
}

func (e *ResourceError) Error() string { return "acquire resource: " + e.Err.Error() }

func (e *ResourceError) Unwrap() error { return e.Err }

// Classify determines whether an error is a retryable expectation failure or
// a fatal one. It is pure and deterministic: the same error always yields the
// same kind.
//
// Programming errors (recovered panics, runtime errors) and resource errors
// are unexpected unconditionally; this check has priority over everything
// else so that bugs and broken environments are never masked by retries. An
// explicit ErrAssertion tag then wins over the legacy message vocabulary.
func Classify(err error) FailureKind {
	if err == nil {
		return KindUnknown
	}

	var pe *PanicError
	if errors.As(err, &pe) {
		return KindUnexpected
	}
	var re runtime.Error
	if errors.As(err, &re) {
		return KindUnexpected
	}
	var xe *ResourceError
	if errors.As(err, &xe) {
		return KindUnexpected
	}

	if errors.Is(err, ErrAssertion) {
		return KindAssertion
	}

	msg := strings.ToLower(err.Error())
	for _, word := range assertionVocabulary {
		if strings.Contains(msg, word) {
			return KindAssertion
		}
	}

	// Unknown errors fail fast rather than being silently retried.
	return KindUnexpected
}
