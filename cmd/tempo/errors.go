package main

import "github.com/maauso/tempo/internal/export"

// userError prints the user-facing message for err while keeping it
// reachable through errors.Is.
type userError struct {
	err error
}

func (e userError) Error() string {
	return export.Message(e.err)
}

func (e userError) Unwrap() error {
	return e.err
}
