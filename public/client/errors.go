package client

import (
	"errors"
	"fmt"

	"github.com/LorenzoLeonardo/remote-call/value"
)

// The broker and its clients agree on a small set of error strings that
// travel as the string payload of an ErrorBody, grounded on
// original_source/src/error.rs's CommonErrors enum. Callers that need to
// branch on *why* a RemoteError occurred compare against these, the way
// the original compares against CommonErrors variants.
const (
	ErrObjectNotFound        = "Object not found"
	ErrClientConnectionError = "client connection error"
	ErrServerConnectionError = "server connection error"
	ErrSerdeParseError       = "serde parsing error"
	ErrRemoteConnectionError = "remote connection error"
	ErrInvalidResponseData   = "invalid response data"
)

// ErrRegistrationFailed is returned by RegisterObject when the broker
// rejects an AddShareObjectRequest.
var ErrRegistrationFailed = errors.New("client: object registration failed")

// RemoteError wraps the error payload of a RemoteCallResponse whose
// ErrorBody was populated, i.e. a remote_call that the object's handler
// (or the broker itself, on its behalf) rejected.
type RemoteError struct {
	Payload value.Value
}

func (e *RemoteError) Error() string {
	if s, ok := e.Payload.AsString(); ok {
		return s
	}
	return fmt.Sprintf("remote error: %s", e.Payload.String())
}

// Is reports whether e's payload is the string sentinel target, letting
// callers write errors.Is(err, &client.RemoteError{Payload: value.String(client.ErrObjectNotFound)}).
func (e *RemoteError) Is(target error) bool {
	other, ok := target.(*RemoteError)
	if !ok {
		return false
	}
	return e.Payload.Equal(other.Payload)
}
