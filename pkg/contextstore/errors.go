package contextstore

import (
	"context"
	"errors"

	"github.com/papercomputeco/frames/pkg/agent"
	"github.com/papercomputeco/frames/pkg/generator"
	"github.com/papercomputeco/frames/pkg/metadata"
	"github.com/papercomputeco/frames/pkg/storage"
	"github.com/papercomputeco/frames/pkg/view"
)

// ErrorKind is the caller-facing classification of a failure.
type ErrorKind string

const (
	KindNone               ErrorKind = ""
	KindNotFound           ErrorKind = "NotFound"
	KindIntegrityViolation ErrorKind = "IntegrityViolation"
	KindPolicyViolation    ErrorKind = "PolicyViolation"
	KindConflict           ErrorKind = "Conflict"
	KindTransient          ErrorKind = "Transient"
	KindCancelled          ErrorKind = "Cancelled"
	KindTimeout            ErrorKind = "Timeout"
	KindInternal           ErrorKind = "Internal"
)

// KindOf maps err onto the error taxonomy. Integrity violations take
// precedence over every other kind so they are never masked.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}

	var (
		pe metadata.PolicyError
		ua agent.UnknownAgentError
		ia agent.InvalidAgentError
	)
	switch {
	case storage.IsIntegrity(err):
		return KindIntegrityViolation
	case storage.IsNotFound(err), storage.IsNodeUnknown(err):
		return KindNotFound
	case errors.As(err, &pe), errors.As(err, &ua), errors.As(err, &ia), errors.Is(err, view.ErrInvalidPolicy):
		return KindPolicyViolation
	case storage.IsConflict(err):
		return KindConflict
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case storage.IsTransient(err), generator.IsTransient(err):
		return KindTransient
	}
	return KindInternal
}

// Retryable reports whether a failure of this kind may succeed if retried.
func (k ErrorKind) Retryable() bool {
	return k == KindTransient
}
