package errors

// ErrorCode is a stable, machine-readable error identifier. Codes cross
// process boundaries (NATS replies) so they must not be renamed.
type ErrorCode string

// Coder is implemented by anything that carries an ErrorCode.
type Coder interface {
	Code() ErrorCode
}

// Error is a coded error with an optional message, payload and cause.
type Error interface {
	error
	Coder
	WithMessage(msg string) Error
	WithData(data any) Error
	GetData() any
	Unwrap() error
}

// Factory builds Errors.
type Factory interface {
	New(code ErrorCode) Error
	Wrap(code ErrorCode, err error) Error
	WithMessage(code ErrorCode, msg string) Error
	WithData(code ErrorCode, data any) Error
}
