package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced to the caller.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindBoundaryNotInSameChannel
	KindAmbiguousDestination
	KindUnresolvedLinkBoundary
	KindMissingParameter
	KindContentTooLong
	KindBoundaryNotFound
	KindTransport
)

func (k ErrorKind) String() string {
	switch k {
	case KindBoundaryNotInSameChannel:
		return "boundary_not_in_same_channel"
	case KindAmbiguousDestination:
		return "ambiguous_destination"
	case KindUnresolvedLinkBoundary:
		return "unresolved_link_boundary"
	case KindMissingParameter:
		return "missing_parameter"
	case KindContentTooLong:
		return "content_too_long"
	case KindBoundaryNotFound:
		return "boundary_not_found"
	case KindTransport:
		return "transport_failure"
	default:
		return "unknown"
	}
}

// Error is the typed error returned by every operation.
type Error struct {
	Kind   ErrorKind
	Op     string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds a detail-only error of the given kind.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// TransportError wraps an upstream failure. Errors that already carry a kind
// are returned unchanged.
func TransportError(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: KindTransport, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsUserFacing reports whether err is caused by the request itself and can be
// shown to the requester as is.
func IsUserFacing(err error) bool {
	switch KindOf(err) {
	case KindBoundaryNotInSameChannel,
		KindAmbiguousDestination,
		KindUnresolvedLinkBoundary,
		KindMissingParameter,
		KindContentTooLong,
		KindBoundaryNotFound:
		return true
	case KindTransport, KindUnknown:
		return false
	}
	return false
}

// UserMessage renders err for the person who issued the request.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	errors.As(err, &e)
	switch KindOf(err) {
	case KindBoundaryNotInSameChannel:
		return "Both messages must be in the same channel."
	case KindAmbiguousDestination:
		return "Give either a destination channel or a new channel name, not both (and not neither)."
	case KindUnresolvedLinkBoundary:
		return "Could not read the message link: " + e.Detail
	case KindMissingParameter:
		return "Missing parameter: " + e.Detail
	case KindContentTooLong:
		return "A message is too long to be re-posted."
	case KindBoundaryNotFound:
		return "The end message was not found; only the messages before the gap were handled."
	case KindTransport:
		if e.Err != nil {
			return "Discord refused the request: " + e.Err.Error()
		}
		return "Discord refused the request: " + e.Detail
	case KindUnknown:
		return "Something went wrong: " + err.Error()
	}
	return "Something went wrong: " + err.Error()
}
