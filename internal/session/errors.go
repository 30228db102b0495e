package session

import (
	"errors"
	"fmt"
	"strings"
)

// Code identifies a credential failure the user can act on.
type Code string

const (
	CodeEmailInUse        Code = "auth/email-already-in-use"
	CodeWrongPassword     Code = "auth/wrong-password"
	CodeUserNotFound      Code = "auth/user-not-found"
	CodeInvalidCredential Code = "auth/invalid-credential"
	CodeWeakPassword      Code = "auth/weak-password"
	CodeInvalidEmail      Code = "auth/invalid-email"
	CodeFederatedFailed   Code = "auth/federated-failed"
)

var messages = map[Code]string{
	CodeEmailInUse:        "This email is already registered.",
	CodeWrongPassword:     "Incorrect password.",
	CodeUserNotFound:      "No account found with this email.",
	CodeInvalidCredential: "Invalid email or password.",
	CodeWeakPassword:      "Password should be at least 6 characters.",
	CodeInvalidEmail:      "Please enter a valid email address.",
}

const genericMessage = "Something went wrong. Please try again."

type Error struct {
	Code     Code
	Provider string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(code Code, err error) *Error { return &Error{Code: code, Err: err} }

// CodeOf returns the credential code carried by err, or "".
func CodeOf(err error) Code {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// Message maps an authentication error to text fit for the sign-in form.
func Message(err error) string {
	var se *Error
	if !errors.As(err, &se) {
		return genericMessage
	}
	if se.Code == CodeFederatedFailed {
		name := "Federated"
		if se.Provider != "" {
			name = providerTitle(se.Provider)
		}
		return name + " Sign In failed. Try again."
	}
	if msg, ok := messages[se.Code]; ok {
		return msg
	}
	return genericMessage
}

func providerTitle(p string) string {
	return strings.ToUpper(p[:1]) + p[1:]
}
