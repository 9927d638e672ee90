// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package clerr provides a small structured error type distinguishing
// the error kinds spec.md §7 enumerates, so main() can log one
// classified line and exit instead of guessing from an error string.
package clerr

import (
	"errors"
	"fmt"
)

// Kind categorizes an error per spec.md §7.
type Kind int

const (
	KindUnknown Kind = iota
	// KindFatalConfig: bad mask, invalid regex, missing rule keys,
	// cannot bind kernel handles. The process must exit non-zero.
	KindFatalConfig
	// KindPacketMalformed: parse error, unsupported L3/L4, zero-length
	// payload. The packet is accepted unchanged; no state is altered.
	KindPacketMalformed
	// KindEventIrrelevant: UNKNOWN/ERROR event, non-TCP/UDP event.
	// Logged at info, event loop continues.
	KindEventIrrelevant
	// KindTransientKernel: a kernel-read failure. Logged at info; the
	// loop continues if possible, otherwise the worker terminates.
	KindTransientKernel
)

func (k Kind) String() string {
	switch k {
	case KindFatalConfig:
		return "fatal_config"
	case KindPacketMalformed:
		return "packet_malformed"
	case KindEventIrrelevant:
		return "event_irrelevant"
	case KindTransientKernel:
		return "transient_kernel"
	default:
		return "unknown"
	}
}

// Error is a classified error with an optional wrapped cause.
type Error struct {
	Kind       Kind
	Message    string
	Underlying error
}

func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Underlying)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Underlying
}

// New creates a classified error.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap classifies an existing error, attaching a message.
func Wrap(err error, kind Kind, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: msg, Underlying: err}
}

// GetKind returns the Kind of err, or KindUnknown if err is not (or
// does not wrap) a *Error.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
