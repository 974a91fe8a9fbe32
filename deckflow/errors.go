package deckflow

import (
	"fmt"
	"strings"
)

// ErrorClass partitions document-API failures for retry and breaker
// decisions.
type ErrorClass int

const (
	// ClassTransient failures (network, timeout, rate limit) may be
	// retried with backoff.
	ClassTransient ErrorClass = iota
	// ClassPermanent failures (auth, not-found, quota, invalid request)
	// must never be retried.
	ClassPermanent
	// ClassCritical failures (connection, SSL, resource exhaustion)
	// force the circuit breaker open immediately.
	ClassCritical
)

func (c ErrorClass) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassPermanent:
		return "permanent"
	case ClassCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// permanentSignatures mark errors that retrying cannot fix.
var permanentSignatures = []string{
	"invalid request",
	"permission denied",
	"not found",
	"quota exceeded",
}

// criticalSignatures mark infrastructure-level failures that should trip
// the breaker without waiting for the counted threshold.
var criticalSignatures = []string{
	"ssl",
	"connection",
	"timeout",
	"segmentation",
	"memory",
}

// Classify inspects an error's text and assigns it an ErrorClass.
// Permanent signatures win over critical ones so a "quota exceeded"
// failure is recorded once rather than tripping the breaker.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassTransient
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range permanentSignatures {
		if strings.Contains(msg, sig) {
			return ClassPermanent
		}
	}
	for _, sig := range criticalSignatures {
		if strings.Contains(msg, sig) {
			return ClassCritical
		}
	}
	return ClassTransient
}

// IsPermanent reports whether err matches a permanent-error signature.
func IsPermanent(err error) bool {
	return Classify(err) == ClassPermanent
}

// IsCritical reports whether err matches a critical-error signature.
func IsCritical(err error) bool {
	return Classify(err) == ClassCritical
}

// OperationError wraps a document-mutation failure with the container it
// occurred on and its retry class.
type OperationError struct {
	Op          string
	DocumentID  string
	ContainerID string
	Class       ErrorClass
	Err         error
}

func (e *OperationError) Error() string {
	if e.ContainerID != "" {
		return fmt.Sprintf("%s failed on %s container %s (%s): %v",
			e.Op, e.DocumentID, e.ContainerID, e.Class, e.Err)
	}
	return fmt.Sprintf("%s failed on %s (%s): %v", e.Op, e.DocumentID, e.Class, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// NewOperationError classifies err and wraps it.
func NewOperationError(op, documentID, containerID string, err error) *OperationError {
	return &OperationError{
		Op:          op,
		DocumentID:  documentID,
		ContainerID: containerID,
		Class:       Classify(err),
		Err:         err,
	}
}
