package resolver

import (
	"errors"
	"fmt"

	"github.com/mattermost/mattermost-webapp-sub002/pkg/identifier"
)

// Sentinels for errors.Is checks against *Error
var (
	ErrNotFound          = errors.New("conversation not found")
	ErrRemoteFailure     = errors.New("remote call failed")
	ErrInvalidIdentifier = errors.New("invalid identifier")
)

// ErrorKind classifies why a resolution failed
type ErrorKind int

const (
	KindNotFound ErrorKind = iota + 1
	KindRemoteFailure
	KindInvalidIdentifier
)

// String returns the kind name used in logs and metric labels
func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindRemoteFailure:
		return "remote_failure"
	case KindInvalidIdentifier:
		return "invalid_identifier"
	default:
		return "unknown"
	}
}

// UserMessage is the text shown to the user when a conversation cannot be opened
func (k ErrorKind) UserMessage() string {
	switch k {
	case KindNotFound:
		return "That conversation doesn't exist or you don't have access to it."
	case KindRemoteFailure:
		return "Couldn't reach the server to open this conversation."
	case KindInvalidIdentifier:
		return "That link doesn't point to a conversation."
	default:
		return "Could not open this conversation."
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindNotFound:
		return ErrNotFound
	case KindRemoteFailure:
		return ErrRemoteFailure
	case KindInvalidIdentifier:
		return ErrInvalidIdentifier
	default:
		return nil
	}
}

// Error is the single failure type returned by Resolve.
//
//	var resolveErr *resolver.Error
//	if errors.As(err, &resolveErr) && resolveErr.Kind == resolver.KindNotFound { ... }
type Error struct {
	Kind       ErrorKind
	Identifier identifier.Identifier
	// Op names the remote operation that failed, empty for local failures
	Op  string
	Err error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("resolve %s %q: %s", e.Identifier.Kind, e.Identifier.Raw, e.Kind)
	if e.Op != "" {
		msg += " during " + e.Op
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is matches the sentinel for the error's kind
func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the ErrorKind carried by err, or 0 if err is not a resolution error
func KindOf(err error) ErrorKind {
	var resolveErr *Error
	if errors.As(err, &resolveErr) {
		return resolveErr.Kind
	}
	return 0
}

// isNotFound reports whether a remote error means the entity does not exist
func isNotFound(err error) bool {
	var nf notFounder
	return errors.As(err, &nf) && nf.NotFound()
}
