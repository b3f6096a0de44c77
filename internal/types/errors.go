package types

import (
	"errors"
	"fmt"
)

// ErrorKind is the coarse error family surfaced to callers. The HTTP layer
// maps kinds to status codes; hooks and the reconciler branch on them.
type ErrorKind string

const (
	KindNotFound           ErrorKind = "NotFound"
	KindPreconditionFailed ErrorKind = "PreconditionFailed"
	KindConflict           ErrorKind = "Conflict"
	KindInvalid            ErrorKind = "Invalid"
	KindStoreBusy          ErrorKind = "StoreBusy"
	KindInternal           ErrorKind = "Internal"
)

// DomainError is the error type crossing model boundaries. Code identifies
// the precise failure; Kind groups codes into families.
type DomainError struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// Is matches on Code so errors.Is(err, types.ErrNotAMember) works against
// instances carrying a formatted message.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && t.Code == e.Code
}

// Msgf returns a copy of the sentinel carrying a formatted message.
func (e *DomainError) Msgf(format string, args ...any) *DomainError {
	return &DomainError{Kind: e.Kind, Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

// Sentinel errors. Construct instances with Msgf; match with errors.Is.
var (
	ErrChannelNotFound = &DomainError{Kind: KindNotFound, Code: "ChannelNotFound"}
	ErrAgentNotFound   = &DomainError{Kind: KindNotFound, Code: "AgentNotFound"}
	ErrMessageNotFound = &DomainError{Kind: KindNotFound, Code: "MessageNotFound"}
	ErrProjectNotFound = &DomainError{Kind: KindNotFound, Code: "ProjectNotFound"}
	ErrSessionNotFound = &DomainError{Kind: KindNotFound, Code: "SessionNotFound"}

	ErrNotAMember         = &DomainError{Kind: KindPreconditionFailed, Code: "NotAMember"}
	ErrNotAllowedToLeave  = &DomainError{Kind: KindPreconditionFailed, Code: "NotAllowedToLeave"}
	ErrNotAllowedToInvite = &DomainError{Kind: KindPreconditionFailed, Code: "NotAllowedToInvite"}
	ErrArchived           = &DomainError{Kind: KindPreconditionFailed, Code: "Archived"}
	ErrDMForbidden        = &DomainError{Kind: KindPreconditionFailed, Code: "DMForbidden"}
	ErrMessageTooLong     = &DomainError{Kind: KindPreconditionFailed, Code: "MessageTooLong"}
	ErrInvalidThread      = &DomainError{Kind: KindPreconditionFailed, Code: "InvalidThread"}
	ErrAccessDenied       = &DomainError{Kind: KindPreconditionFailed, Code: "AccessDenied"}

	ErrDuplicate = &DomainError{Kind: KindConflict, Code: "Duplicate"}

	ErrInvalidChannelID = &DomainError{Kind: KindInvalid, Code: "InvalidChannelID"}
	ErrInvalidName      = &DomainError{Kind: KindInvalid, Code: "InvalidName"}
	ErrInvalidScope     = &DomainError{Kind: KindInvalid, Code: "InvalidScope"}
	ErrInvalidArgument  = &DomainError{Kind: KindInvalid, Code: "InvalidArgument"}

	ErrStoreBusy = &DomainError{Kind: KindStoreBusy, Code: "StoreBusy"}

	ErrInternal = &DomainError{Kind: KindInternal, Code: "Internal"}
)

// KindOf extracts the error kind from err, unwrapping as needed.
// Unrecognized errors are Internal.
func KindOf(err error) ErrorKind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// CodeOf extracts the error code from err, unwrapping as needed.
func CodeOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return "Internal"
}
