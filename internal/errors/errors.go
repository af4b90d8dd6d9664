package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeParse indicates an unrecognized command keyword
	ErrorTypeParse ErrorType = "PARSE"
	// ErrorTypeArity indicates a command with the wrong number of tokens
	ErrorTypeArity ErrorType = "ARITY"
	// ErrorTypeTransactionState indicates a nested BEGIN or a COMMIT/ROLLBACK with no open transaction
	ErrorTypeTransactionState ErrorType = "TRANSACTION_STATE"
	// ErrorTypeNotFound indicates the requested key was not found
	ErrorTypeNotFound ErrorType = "NOT_FOUND"
	// ErrorTypeIO indicates a file creation, lock, read or write failure
	ErrorTypeIO ErrorType = "IO"
	// ErrorTypeLogFormat indicates a log line that does not parse as SET/DEL
	ErrorTypeLogFormat ErrorType = "LOG_FORMAT"
	// ErrorTypeInternal indicates a programming error inside the engine
	ErrorTypeInternal ErrorType = "INTERNAL"
)

// User-visible responses of the text protocol.
const (
	MsgInvalidCommand    = "invalid command"
	MsgNestedTransaction = "could not create nested transaction"
	MsgNoTransaction     = "no transaction opening"
)

// KVError represents a custom error with additional context.
// For protocol-level kinds Message is the exact response line.
type KVError struct {
	Type    ErrorType
	Message string
	Err     error
	Stack   string
}

// Error implements the error interface
func (e *KVError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Err.Error())
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error
func (e *KVError) Unwrap() error {
	return e.Err
}

// New creates a new KVError
func New(errType ErrorType, message string, err error) *KVError {
	_, file, line, _ := runtime.Caller(1)
	stack := fmt.Sprintf("%s:%d", file, line)

	return &KVError{
		Type:    errType,
		Message: message,
		Err:     err,
		Stack:   stack,
	}
}

// UnknownCommand reports a keyword outside the protocol.
func UnknownCommand(keyword string) *KVError {
	return New(ErrorTypeParse, "unknown command "+keyword, nil)
}

// InvalidArity reports a recognized command with the wrong token count.
func InvalidArity(keyword string, got int) *KVError {
	return New(ErrorTypeArity, MsgInvalidCommand, fmt.Errorf("%s takes a different number of tokens than %d", keyword, got))
}

// KeyNotFound reports a GET or DEL on an absent key.
func KeyNotFound(key string) *KVError {
	return New(ErrorTypeNotFound, key+" not exist", nil)
}

// NestedTransaction reports a BEGIN while a transaction is open.
func NestedTransaction() *KVError {
	return New(ErrorTypeTransactionState, MsgNestedTransaction, nil)
}

// NoTransaction reports a COMMIT or ROLLBACK while idle.
func NoTransaction() *KVError {
	return New(ErrorTypeTransactionState, MsgNoTransaction, nil)
}

// IO wraps a filesystem failure.
func IO(message string, err error) *KVError {
	return New(ErrorTypeIO, message, err)
}

// LogFormat reports a persisted line that is not a SET/DEL entry.
func LogFormat(line string) *KVError {
	return New(ErrorTypeLogFormat, fmt.Sprintf("malformed log entry %q", line), nil)
}

// TypeOf returns the ErrorType of the first KVError in err's chain,
// or the empty string.
func TypeOf(err error) ErrorType {
	var kvErr *KVError
	if stderrors.As(err, &kvErr) {
		return kvErr.Type
	}
	return ""
}

// IsParse checks if the error is an unknown command error
func IsParse(err error) bool {
	return TypeOf(err) == ErrorTypeParse
}

// IsArity checks if the error is an arity error
func IsArity(err error) bool {
	return TypeOf(err) == ErrorTypeArity
}

// IsTransactionState checks if the error is a transaction state error
func IsTransactionState(err error) bool {
	return TypeOf(err) == ErrorTypeTransactionState
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return TypeOf(err) == ErrorTypeNotFound
}

// IsIO checks if the error is an I/O error
func IsIO(err error) bool {
	return TypeOf(err) == ErrorTypeIO
}

// IsLogFormat checks if the error is a log format error
func IsLogFormat(err error) bool {
	return TypeOf(err) == ErrorTypeLogFormat
}

// IsInternal checks if the error is an internal error
func IsInternal(err error) bool {
	return TypeOf(err) == ErrorTypeInternal
}

// Response renders err as a single protocol line. Protocol-level kinds
// render their Message verbatim; anything else becomes "error: <detail>".
func Response(err error) string {
	var kvErr *KVError
	if !stderrors.As(err, &kvErr) {
		return "error: " + err.Error()
	}
	switch kvErr.Type {
	case ErrorTypeParse, ErrorTypeArity, ErrorTypeTransactionState, ErrorTypeNotFound:
		return kvErr.Message
	default:
		return "error: " + kvErr.Error()
	}
}

// RecoverError recovers from a panic and converts it to a KVError
func RecoverError(r interface{}) error {
	if r == nil {
		return nil
	}

	var err error
	switch v := r.(type) {
	case error:
		err = v
	case string:
		err = fmt.Errorf("%s", v)
	default:
		err = fmt.Errorf("%v", v)
	}

	return New(ErrorTypeInternal, "recovered from panic", err)
}
