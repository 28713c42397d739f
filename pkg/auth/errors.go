package auth

import "errors"

// Kind classifies authentication failures. The set is closed.
type Kind string

const (
	KindUnauthorized     Kind = "unauthorized"
	KindTokenMalformed   Kind = "token_malformed"
	KindSignatureInvalid Kind = "signature_invalid"
	KindTokenExpired     Kind = "token_expired"
	KindTokenInvalid     Kind = "token_invalid"
	KindSigning          Kind = "signing_error"
)

// MissingAuthorizationHeader is the only message the Authenticator uses for
// Unauthorized, so callers cannot tell an absent header from a malformed one.
const MissingAuthorizationHeader = "Missing Authorization header"

// Error is a classified authentication failure. Message is meant for logs.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind only, so errors.Is(err, ErrTokenExpired) holds for any
// expired-token error regardless of its message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrUnauthorized     = &Error{Kind: KindUnauthorized}
	ErrTokenMalformed   = &Error{Kind: KindTokenMalformed}
	ErrSignatureInvalid = &Error{Kind: KindSignatureInvalid}
	ErrTokenExpired     = &Error{Kind: KindTokenExpired}
	ErrTokenInvalid     = &Error{Kind: KindTokenInvalid}
	ErrSigning          = &Error{Kind: KindSigning}
)

func NewError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Unauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsVerificationFailure reports whether a credential was presented but
// failed verification.
func IsVerificationFailure(err error) bool {
	switch KindOf(err) {
	case KindTokenMalformed, KindSignatureInvalid, KindTokenExpired, KindTokenInvalid:
		return true
	}
	return false
}
