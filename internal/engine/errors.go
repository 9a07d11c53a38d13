package engine

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeForbidden indicates the actor lacks a permission. Nothing was mutated.
	ErrCodeForbidden ErrorCode = "FORBIDDEN"

	// ErrCodeNotFound indicates the referenced stack or asset does not exist.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeInvalidRequest indicates the request contradicts current state
	// (primary not a member, asset not in stack, empty asset set).
	ErrCodeInvalidRequest ErrorCode = "INVALID_REQUEST"

	// ErrCodeConflict indicates an attempt to remove a stack's primary asset.
	ErrCodeConflict ErrorCode = "CONFLICT"

	// ErrCodeInternal indicates a storage failure, a publish failure after a
	// committed mutation, or auto-stacking retry exhaustion.
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// Error is returned by every engine operation.
//
// Error includes structured fields for diagnostics and CLI responses.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// StackID identifies the affected stack, if any.
	StackID string

	// AssetID identifies the affected asset, if any.
	AssetID string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	switch {
	case e.StackID != "" && e.AssetID != "":
		msg += fmt.Sprintf(" (stack=%s, asset=%s)", e.StackID, e.AssetID)
	case e.StackID != "":
		msg += fmt.Sprintf(" (stack=%s)", e.StackID)
	case e.AssetID != "":
		msg += fmt.Sprintf(" (asset=%s)", e.AssetID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the code of the first *Error in err's chain, or "" if there is none.
func CodeOf(err error) ErrorCode {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ""
}

// IsForbidden returns true if err is a FORBIDDEN engine error.
func IsForbidden(err error) bool { return CodeOf(err) == ErrCodeForbidden }

// IsNotFound returns true if err is a NOT_FOUND engine error.
func IsNotFound(err error) bool { return CodeOf(err) == ErrCodeNotFound }

// IsInvalid returns true if err is an INVALID_REQUEST engine error.
func IsInvalid(err error) bool { return CodeOf(err) == ErrCodeInvalidRequest }

// IsConflict returns true if err is a CONFLICT engine error.
func IsConflict(err error) bool { return CodeOf(err) == ErrCodeConflict }

// IsInternal returns true if err is an INTERNAL engine error.
func IsInternal(err error) bool { return CodeOf(err) == ErrCodeInternal }

func forbiddenError(err error) *Error {
	return &Error{Code: ErrCodeForbidden, Message: "access denied", Err: err}
}

func stackNotFound(stackID string) *Error {
	return &Error{Code: ErrCodeNotFound, Message: "stack not found", StackID: stackID}
}

func assetNotFound(assetID string) *Error {
	return &Error{Code: ErrCodeNotFound, Message: "asset not found", AssetID: assetID}
}

func invalidRequest(message, stackID, assetID string) *Error {
	return &Error{Code: ErrCodeInvalidRequest, Message: message, StackID: stackID, AssetID: assetID}
}

func internalError(message string, err error) *Error {
	return &Error{Code: ErrCodeInternal, Message: message, Err: err}
}
