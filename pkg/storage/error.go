package storage

import (
	"errors"
	"fmt"

	"github.com/papercomputeco/frames/pkg/identity"
)

// Kinds of missing records reported by NotFoundError.
const (
	KindNode  = "node"
	KindFrame = "frame"
	KindHead  = "head"
)

// NotFoundError is returned when a requested record doesn't exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	if e.ID == "" {
		return e.Kind + " not found"
	}
	return e.Kind + " not found: " + e.ID
}

// NodeUnknownError is returned by frame set operations on a node that was
// never ingested. It is distinct from a known node with an empty frame set.
type NodeUnknownError struct {
	NodeID identity.NodeID
}

func (e NodeUnknownError) Error() string {
	return "unknown node: " + e.NodeID.String()
}

// IntegrityError is returned when a stored frame's bytes no longer hash to
// the identifier it was stored under, no longer decode at all, or a frame
// is submitted with an ID that does not match its contents.
type IntegrityError struct {
	FrameID  identity.FrameID
	Computed identity.FrameID

	// Cause is set when the stored record could not be decoded.
	Cause error
}

func (e IntegrityError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("integrity violation: frame %s is unreadable: %v", e.FrameID, e.Cause)
	}
	return fmt.Sprintf("integrity violation: frame %s hashes to %s", e.FrameID, e.Computed)
}

func (e IntegrityError) Unwrap() error { return e.Cause }

// ConflictError is returned when a write would break a store invariant.
type ConflictError struct {
	Reason string
}

func (e ConflictError) Error() string {
	return "conflict: " + e.Reason
}

// TransientError wraps a backend failure that may succeed on retry, such as
// a busy database or an aborted transaction.
type TransientError struct {
	Op  string
	Err error
}

func (e TransientError) Error() string {
	return fmt.Sprintf("transient storage failure during %s: %v", e.Op, e.Err)
}

func (e TransientError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is, or wraps, a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}

// IsNodeUnknown reports whether err is, or wraps, a NodeUnknownError.
func IsNodeUnknown(err error) bool {
	var nu NodeUnknownError
	return errors.As(err, &nu)
}

// IsIntegrity reports whether err is, or wraps, an IntegrityError.
func IsIntegrity(err error) bool {
	var ie IntegrityError
	return errors.As(err, &ie)
}

// IsConflict reports whether err is, or wraps, a ConflictError.
func IsConflict(err error) bool {
	var ce ConflictError
	return errors.As(err, &ce)
}

// IsTransient reports whether err is, or wraps, a TransientError.
func IsTransient(err error) bool {
	var te TransientError
	return errors.As(err, &te)
}
