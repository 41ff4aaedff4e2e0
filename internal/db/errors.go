package db

import "errors"

// ErrKeyNotFound is returned by Get for a missing key.
var ErrKeyNotFound = errors.New("db: key not found")

// Command names recorded in Error.Op.
const (
	OpPing = "PING"
	OpGet  = "GET"
	OpMGet = "MGET"
	OpSet  = "SET"
)

// Error records the backend command that failed.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return "db " + e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
