// Package dberrors implements the error taxonomy of section 7 of the
// design: every user-visible error carries a stable Kind, a
// SQLSTATE-like five-character code, a short message, and optional
// context (query text, line/column, table/column/constraint names).
package dberrors

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Kind is the stable, matchable category of an engine error.
type Kind string

const (
	KindSyntax      Kind = "syntax"
	KindConstraint  Kind = "constraint"
	KindDeadlock    Kind = "deadlock"
	KindLockTimeout Kind = "lock_timeout"
	KindDataType    Kind = "data_type"
	KindResource    Kind = "resource"
	KindRecovery    Kind = "recovery"
	KindInternal    Kind = "internal"
	KindNotFound    Kind = "not_found"
)

// SQLSTATE-like codes, five characters, grouped by Kind.
const (
	CodeSyntaxError        = "42601"
	CodeUniqueViolation     = "23505"
	CodeNotNullViolation    = "23502"
	CodeCheckViolation      = "23514"
	CodeForeignKeyViolation = "23503"
	CodeDeadlockDetected    = "40001"
	CodeLockTimeout         = "55P03"
	CodeDataException       = "22000"
	CodeInsufficientRes     = "53000"
	CodeIOFailure           = "58030"
	CodeInternalError       = "XX000"
	CodeUndefinedTable      = "42P01"
	CodeUndefinedColumn     = "42703"
)

// Context carries optional diagnostic fields attached to an error.
type Context struct {
	Query      string
	Line       int
	Column     int
	Table      string
	ColumnName string
	Constraint string
}

// EngineError is the concrete error type surfaced at executor
// boundaries. It wraps an underlying cause (if any) so errors.Is/As
// keep working against I/O and encoding failures the way the teacher's
// fmt.Errorf("...: %w", err) chains do, but gives callers a closed,
// switchable Kind instead of ad hoc structs.
type EngineError struct {
	Kind     Kind
	SQLState string
	Message  string
	Context  Context
	cause    error
}

func (e *EngineError) Error() string {
	if e.Context.Table != "" {
		return fmt.Sprintf("[%s] %s (table=%s)", e.SQLState, e.Message, e.Context.Table)
	}
	return fmt.Sprintf("[%s] %s", e.SQLState, e.Message)
}

func (e *EngineError) Unwrap() error { return e.cause }

// New builds an EngineError with no wrapped cause.
func New(kind Kind, sqlstate, message string) *EngineError {
	return &EngineError{Kind: kind, SQLState: sqlstate, Message: message}
}

// Wrap builds an EngineError that wraps an underlying cause, preserving
// the cause's chain via cockroachdb/errors so errors.Is/As still see it.
func Wrap(cause error, kind Kind, sqlstate, message string) *EngineError {
	return &EngineError{
		Kind:     kind,
		SQLState: sqlstate,
		Message:  message,
		cause:    errors.Wrap(cause, message),
	}
}

// WithContext attaches diagnostic context and returns the same error for
// chaining at the call site, e.g. return dberrors.New(...).WithContext(...).
func (e *EngineError) WithContext(ctx Context) *EngineError {
	e.Context = ctx
	return e
}

func (e *EngineError) WithTable(table string) *EngineError {
	e.Context.Table = table
	return e
}

func (e *EngineError) WithColumn(col string) *EngineError {
	e.Context.ColumnName = col
	return e
}

func (e *EngineError) WithConstraint(c string) *EngineError {
	e.Context.Constraint = c
	return e
}

// Retryable reports whether the caller may retry the transaction, per
// the recovery column of section 7's table.
func (e *EngineError) Retryable() bool {
	switch e.Kind {
	case KindDeadlock, KindLockTimeout:
		return true
	default:
		return false
	}
}

// Fatal reports whether the error should escalate to panic mode: I/O
// during recovery, or an internal invariant violation.
func (e *EngineError) Fatal() bool {
	return e.Kind == KindRecovery || e.Kind == KindInternal
}

// Convenience constructors used throughout the engine.

func Syntax(msg string, line, col int) *EngineError {
	return New(KindSyntax, CodeSyntaxError, msg).WithContext(Context{Line: line, Column: col})
}

func UniqueViolation(table, constraint string) *EngineError {
	return New(KindConstraint, CodeUniqueViolation, "duplicate key value violates unique constraint").
		WithTable(table).WithConstraint(constraint)
}

func NotNullViolation(table, column string) *EngineError {
	return New(KindConstraint, CodeNotNullViolation, "null value in column violates not-null constraint").
		WithTable(table).WithColumn(column)
}

func Deadlock(txnID uint64) *EngineError {
	return New(KindDeadlock, CodeDeadlockDetected, fmt.Sprintf("transaction %d selected as deadlock victim", txnID))
}

func LockTimeout(txnID uint64) *EngineError {
	return New(KindLockTimeout, CodeLockTimeout, fmt.Sprintf("transaction %d timed out waiting for a lock", txnID))
}

func DataType(msg string) *EngineError {
	return New(KindDataType, CodeDataException, msg)
}

func Resource(msg string) *EngineError {
	return New(KindResource, CodeInsufficientRes, msg)
}

func RecoveryFatal(cause error, msg string) *EngineError {
	return Wrap(cause, KindRecovery, CodeIOFailure, msg)
}

func Internal(msg string) *EngineError {
	return New(KindInternal, CodeInternalError, msg)
}

func TableNotFound(table string) *EngineError {
	return New(KindNotFound, CodeUndefinedTable, fmt.Sprintf("table %q does not exist", table)).WithTable(table)
}

func ColumnNotFound(table, column string) *EngineError {
	return New(KindNotFound, CodeUndefinedColumn, fmt.Sprintf("column %q does not exist", column)).
		WithTable(table).WithColumn(column)
}

// As is a thin re-export so callers only need to import this package to
// dig an *EngineError out of an opaque wrapped error.
func As(err error) (*EngineError, bool) {
	var ee *EngineError
	ok := errors.As(err, &ee)
	return ee, ok
}
