package results

import (
	"errors"
	"fmt"
)

// Common sentinel errors
var (
	// ErrNoLockManager is wrapped by lock operations on a store without a lock manager
	ErrNoLockManager = errors.New("result store does not have a lock manager")

	// ErrUnsupportedIsolationLevel is returned for isolation levels the store does not know
	ErrUnsupportedIsolationLevel = errors.New("unsupported isolation level")

	// ErrRecordLocked is matched by LockedError
	ErrRecordLocked = errors.New("result record is locked by another holder")

	// ErrNoCachedObject is returned when writing a reference that has no value to write
	ErrNoCachedObject = errors.New("cannot write a result that has no cached object")

	// ErrUnknownReferenceType is returned when decoding a reference with an unregistered type tag
	ErrUnknownReferenceType = errors.New("unknown result reference type")
)

// ConfigurationError reports an operation the store is not configured for.
type ConfigurationError struct {
	Op    string
	Cause error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Cause)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Cause
}

// SerializationError reports a value the record's serializer could not encode.
type SerializationError struct {
	// TypeName is the Go type of the value
	TypeName string

	// Serializer is the serializer type tag
	Serializer string

	// Hint is appended to the message when set
	Hint string

	// Cause is the underlying serializer error
	Cause error
}

func (e *SerializationError) Error() string {
	msg := fmt.Sprintf(
		"failed to serialize object of type %s with serializer %q: %v. "+
			"You can try a different serializer, or disable persistence for this result",
		e.TypeName, e.Serializer, e.Cause)
	if e.Hint != "" {
		msg += ". " + e.Hint
	}
	return msg
}

func (e *SerializationError) Unwrap() error {
	return e.Cause
}

// LockedError is returned when persisting a record that another holder has locked.
type LockedError struct {
	Key string

	// Writer is the holder whose write was rejected
	Writer string
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("cannot write to result record with key %q as holder %q: locked by another holder",
		e.Key, e.Writer)
}

func (e *LockedError) Unwrap() error {
	return ErrRecordLocked
}

// ArgumentError reports an unsupported input value.
type ArgumentError struct {
	Argument string
	Message  string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Argument, e.Message)
}
