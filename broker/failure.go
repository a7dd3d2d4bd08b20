package broker

import (
	"errors"
	"fmt"
	"net/http"
)

type brokerError string

func (e brokerError) Error() string {
	return string(e)
}

const UpstreamStatus = brokerError("broker responded with non success status")
const UnexpectedResponse = brokerError("broker responded with unexpected document")

type FailureKind int

const (
	// Rejected means the broker answered, but not with a 2xx status.
	Rejected FailureKind = iota
	// Transport means no response was received from the broker at all.
	Transport
)

func (k FailureKind) String() string {
	switch k {
	case Rejected:
		return "rejected"
	case Transport:
		return "transport"
	default:
		return "unknown"
	}
}

type Failure struct {
	Kind      FailureKind
	Operation string
	Status    int
	Cause     error
}

func (f *Failure) Error() string {
	switch f.Kind {
	case Rejected:
		return fmt.Sprintf("%s: broker rejected request with status %d: %v", f.Operation, f.Status, f.Cause)
	default:
		return fmt.Sprintf("%s: broker unreachable: %v", f.Operation, f.Cause)
	}
}

func (f *Failure) Unwrap() error {
	return f.Cause
}

// RejectionStatus returns the status code the broker answered with, if err
// carries a rejection.
func RejectionStatus(err error) (int, bool) {
	var f *Failure
	if errors.As(err, &f) && f.Kind == Rejected {
		return f.Status, true
	}

	return 0, false
}

func IsTransport(err error) bool {
	var f *Failure
	return errors.As(err, &f) && f.Kind == Transport
}

func rejection(operation string, status int) *Failure {
	return &Failure{
		Kind:      Rejected,
		Operation: operation,
		Status:    status,
		Cause:     fmt.Errorf("%w: %d %s", UpstreamStatus, status, http.StatusText(status)),
	}
}
