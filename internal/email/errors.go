package email

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAccountNotFound is returned when an account id does not belong to the user.
	ErrAccountNotFound = errors.New("account not found")
	// ErrMessageNotFound is returned when a UID is not present in the selected folder.
	ErrMessageNotFound = errors.New("message not found")
	// ErrNoSuchFolder marks a protocol failure caused by a missing destination folder.
	ErrNoSuchFolder = errors.New("folder does not exist")
	// ErrMoveUnsupported is returned by Session.Move when the server lacks atomic MOVE.
	ErrMoveUnsupported = errors.New("server does not support MOVE")
	// ErrSessionBroken is returned by a session that already failed mid-operation.
	ErrSessionBroken = errors.New("session is broken")
)

// ConnectionError reports a failure to connect, authenticate or select the
// initial folder of an account.
type ConnectionError struct {
	AccountID int64
	Server    string
	Err       error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect account %d (%s): %v", e.AccountID, e.Server, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// FolderNotFoundError reports that no candidate for a logical folder exists.
type FolderNotFoundError struct {
	Logical string
	Tried   []string
}

func (e *FolderNotFoundError) Error() string {
	return fmt.Sprintf("folder %q not found (tried %s)", e.Logical, strings.Join(e.Tried, ", "))
}

// OperationError reports a protocol command that failed on an open session.
type OperationError struct {
	Op     string
	Folder string
	UID    uint32
	Err    error
}

func (e *OperationError) Error() string {
	var b strings.Builder
	b.WriteString("failed to ")
	b.WriteString(e.Op)
	if e.Folder != "" {
		fmt.Fprintf(&b, " (folder %q", e.Folder)
		if e.UID != 0 {
			fmt.Fprintf(&b, ", uid %d", e.UID)
		}
		b.WriteString(")")
	} else if e.UID != 0 {
		fmt.Fprintf(&b, " (uid %d)", e.UID)
	}
	b.WriteString(": ")
	b.WriteString(errString(e.Err))
	return b.String()
}

func (e *OperationError) Unwrap() error { return e.Err }

// CodecError reports a decoding problem in one MIME part. It is logged, never
// returned to callers: decoding is best-effort.
type CodecError struct {
	Part string
	Err  error
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("failed to decode part %s: %v", e.Part, e.Err)
}

func (e *CodecError) Unwrap() error { return e.Err }

// SendError carries the provider's rejection text verbatim.
type SendError struct {
	AccountID int64
	Provider  string
}

func (e *SendError) Error() string {
	return e.Provider
}

func errString(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

// IsConnectionError checks if the error is a connection failure
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}

// IsFolderNotFound checks if no folder candidate existed
func IsFolderNotFound(err error) bool {
	var fe *FolderNotFoundError
	return errors.As(err, &fe)
}

// IsOperationError checks if a protocol command failed
func IsOperationError(err error) bool {
	var oe *OperationError
	return errors.As(err, &oe)
}

// IsSendError checks if the provider rejected an outgoing message
func IsSendError(err error) bool {
	var se *SendError
	return errors.As(err, &se)
}

// FailureKind classifies an error for the request surface.
type FailureKind string

const (
	KindConnection     FailureKind = "connection"
	KindFolderNotFound FailureKind = "folder_not_found"
	KindOperation      FailureKind = "operation"
	KindSend           FailureKind = "send"
	KindNotFound       FailureKind = "not_found"
	KindTimeout        FailureKind = "timeout"
	KindInternal       FailureKind = "internal"
)

// Failure is the user-facing shape of an error.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
}

// Describe maps any error returned by this package to a Failure.
func Describe(err error) Failure {
	if err == nil {
		return Failure{}
	}
	var (
		ce *ConnectionError
		fe *FolderNotFoundError
		se *SendError
		oe *OperationError
	)
	switch {
	case errors.As(err, &se):
		return Failure{Kind: KindSend, Message: se.Provider}
	case errors.Is(err, ErrAccountNotFound), errors.Is(err, ErrMessageNotFound):
		return Failure{Kind: KindNotFound, Message: err.Error()}
	case errors.As(err, &fe):
		return Failure{Kind: KindFolderNotFound, Message: fe.Error()}
	case errors.As(err, &ce):
		return Failure{Kind: KindConnection, Message: ce.Error()}
	case errors.Is(err, context.DeadlineExceeded):
		return Failure{Kind: KindTimeout, Message: err.Error()}
	case errors.As(err, &oe):
		return Failure{Kind: KindOperation, Message: oe.Error()}
	default:
		return Failure{Kind: KindInternal, Message: err.Error()}
	}
}
