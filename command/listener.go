package command

import "github.com/dkv-io/async-client/types"

// GetListener receives the outcome of a Get command. OnSuccess is
// called with a nil Record when the key was not found but the
// operation itself succeeded -- callers that must distinguish
// "not found" from other terminal states should inspect the Record
// for nil rather than relying on OnFailure, since a missing key is not
// an error.
type GetListener interface {
	OnSuccess(rec *types.Record)
	OnFailure(err error)
}

// WriteListener receives the outcome of a command with no record
// payload in its success response: Put, Delete, Append, Prepend, Touch.
type WriteListener interface {
	OnSuccess()
	OnFailure(err error)
}

// ExistsListener receives the outcome of an Exists command.
type ExistsListener interface {
	OnSuccess(exists bool)
	OnFailure(err error)
}
