package xerrors

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// #region kind

// Kind classifies a failure so callers can branch on it with errors.Is.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindInvalidArgument
	KindDimensionMismatch
	KindInsufficientData
	KindNumerical
	KindIncompatibleFile
	KindInvalidState
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindDimensionMismatch:
		return "DimensionMismatch"
	case KindInsufficientData:
		return "InsufficientData"
	case KindNumerical:
		return "NumericalError"
	case KindIncompatibleFile:
		return "IncompatibleFile"
	case KindInvalidState:
		return "InvalidState"
	case KindInternal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// Sentinels for errors.Is matching. Any *Error of the same kind matches.
var (
	ErrInvalidArgument   = &Error{Kind: KindInvalidArgument}
	ErrDimensionMismatch = &Error{Kind: KindDimensionMismatch}
	ErrInsufficientData  = &Error{Kind: KindInsufficientData}
	ErrNumerical         = &Error{Kind: KindNumerical}
	ErrIncompatibleFile  = &Error{Kind: KindIncompatibleFile}
	ErrInvalidState      = &Error{Kind: KindInvalidState}
)

// #endregion kind

// #region error

// Error is a classified failure raised by an operation.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "gmm.SetTau"
	Msg  string
	Err  error // underlying cause, may be nil
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports kind equality so that sentinels match any error of their kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Msg == ""
}

// #endregion error

// #region constructors

// New builds a classified error with a formatted message.
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error. Returns nil when err is nil.
func Wrap(kind Kind, op string, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// #endregion constructors

// #region grpc

// GRPCCode maps the error kind onto a gRPC status code.
func (e *Error) GRPCCode() codes.Code {
	switch e.Kind {
	case KindInvalidArgument, KindDimensionMismatch:
		return codes.InvalidArgument
	case KindInsufficientData, KindInvalidState:
		return codes.FailedPrecondition
	case KindIncompatibleFile:
		return codes.DataLoss
	case KindNumerical:
		return codes.OutOfRange
	case KindInternal:
		return codes.Internal
	default:
		return codes.Unknown
	}
}

// Status converts any error into a gRPC status, classifying *Error values.
func Status(err error) *status.Status {
	if err == nil {
		return status.New(codes.OK, "")
	}
	var e *Error
	if errors.As(err, &e) {
		return status.New(e.GRPCCode(), err.Error())
	}
	return status.New(codes.Unknown, err.Error())
}

// #endregion grpc
