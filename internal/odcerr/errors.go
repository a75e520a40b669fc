// Package odcerr defines the stable error taxonomy shared by every ODC
// component. Errors are plain values, not an exception hierarchy: each
// carries a numeric Code from one of the ranges in spec.md §7 plus a
// human-readable Details string for the reply's Error.details field.
package odcerr

import "fmt"

// Code is a stable, numbered error identifier. Ranges follow spec.md §7:
// Request (100-102), AsyncOp (110-112), Device (120-125),
// AgentFabric (200s), DeviceChannel (300s), Internal (400s).
type Code int

const (
	// Request errors.
	RequestNotSupported Code = 100 + iota
	RequestTimeout
	ResourcePluginFailed
)

const (
	// AsyncOp errors.
	OperationInProgress Code = 110 + iota
	OperationTimeout
	OperationCanceled
)

const (
	// Device errors.
	DeviceChangeStateFailed Code = 120 + iota
	DeviceChangeStateInvalidTransition
	DeviceGetPropertiesFailed
	DeviceSetPropertiesFailed
	DeviceWaitForStateFailed
	TopologyFailed
)

const (
	// AgentFabric errors (200-range).
	DDSCreateSessionFailed Code = 200 + iota
	DDSAttachToSessionFailed
	DDSShutdownSessionFailed
	DDSCreateTopologyFailed
	DDSActivateTopologyFailed
	DDSCommanderInfoFailed
	DDSSubmitAgentsFailed
	DDSSubscribeFailed
)

const (
	// DeviceChannel errors (300-range).
	ChannelCreateTopologyFailed Code = 300 + iota
	ChannelChangeStateFailed
	ChannelGetStateFailed
	ChannelSetPropertiesFailed
	ChannelWaitForStateFailed
)

const (
	// Internal errors (400-range).
	RuntimeError Code = 400 + iota
)

// Error is the error type returned by every ODC request method. It carries
// enough structure for the Request Envelope to populate Reply.Error without
// string-parsing.
type Error struct {
	Code    Code
	Message string
	Details string
}

func (e *Error) Error() string {
	if e.Details == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, e.Details)
}

// New builds an Error with the given code and one-line message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf builds an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithDetails returns a copy of e with Details set, for attaching
// machine-readable context (e.g. failedTasks, stderr output).
func (e *Error) WithDetails(details string) *Error {
	return &Error{Code: e.Code, Message: e.Message, Details: details}
}

// As reports whether err is an *Error and, if so, returns it.
func As(err error) (*Error, bool) {
	e, ok := err.(*Error)
	return e, ok
}

// CodeOf returns the Code of err if it is an *Error, or RuntimeError
// otherwise — used at the Request Envelope boundary so every reply carries
// a code even for errors bubbled up from unexpected places.
func CodeOf(err error) Code {
	if e, ok := As(err); ok {
		return e.Code
	}
	return RuntimeError
}
