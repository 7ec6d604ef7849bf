package errors

import stderrors "errors"

// Class groups ledger errors by how a caller is expected to react to them.
type Class uint8

const (
	ClassUnknown Class = iota
	// ClassValidation marks caller-correctable input errors.
	ClassValidation
	// ClassConflict marks precondition violations against current state.
	ClassConflict
	// ClassAuthorization marks missing ownership or capability.
	ClassAuthorization
	// ClassTemporal marks operations attempted too early or too late.
	ClassTemporal
	// ClassExhausted marks requests exceeding a tracked resource.
	ClassExhausted
	// ClassNotFound marks references to records that do not exist.
	ClassNotFound
	// ClassInternal marks storage or codec failures.
	ClassInternal
)

func (c Class) String() string {
	switch c {
	case ClassValidation:
		return "validation"
	case ClassConflict:
		return "conflict"
	case ClassAuthorization:
		return "authorization"
	case ClassTemporal:
		return "temporal"
	case ClassExhausted:
		return "exhausted"
	case ClassNotFound:
		return "not_found"
	case ClassInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is a sentinel error tagged with its taxonomy class. Values are
// compared by identity so errors.Is keeps working through wrapping.
type Error struct {
	class Class
	msg   string
}

// New returns a classified sentinel error.
func New(class Class, msg string) error {
	return &Error{class: class, msg: msg}
}

func (e *Error) Error() string { return e.msg }

// Class reports the taxonomy class of the error.
func (e *Error) Class() Class { return e.class }

// Classify returns the class of the first classified error in err's chain.
// Unclassified non-nil errors are reported as internal.
func Classify(err error) Class {
	if err == nil {
		return ClassUnknown
	}
	var classified interface{ Class() Class }
	if stderrors.As(err, &classified) {
		return classified.Class()
	}
	return ClassInternal
}

// Validation, Conflict, Authorization, Temporal, Exhausted and NotFound are
// shorthands used by the native modules when declaring their sentinels.
func Validation(msg string) error    { return New(ClassValidation, msg) }
func Conflict(msg string) error      { return New(ClassConflict, msg) }
func Authorization(msg string) error { return New(ClassAuthorization, msg) }
func Temporal(msg string) error      { return New(ClassTemporal, msg) }
func Exhausted(msg string) error     { return New(ClassExhausted, msg) }
func NotFound(msg string) error      { return New(ClassNotFound, msg) }
