package db

import "errors"

// ErrKeyNotFound is returned by Get for a missing or expired key.
var ErrKeyNotFound = errors.New("db: key not found")

// Op names the command that failed.
const (
	OpPing      = "PING"
	OpHSet      = "HSET"
	OpPExpire   = "PEXPIRE"
	OpHGetAll   = "HGETALL"
	OpScan      = "SCAN"
	OpUnlink    = "UNLINK"
	OpGet       = "GET"
	OpSet       = "SET"
	OpSetNX     = "SET NX"
	OpEval      = "EVAL"
	OpZIncrBy   = "ZINCRBY"
	OpZRevRange = "ZREVRANGE"
)

// Error wraps a store failure with the command that produced it.
// Keys are not included: source record keys carry tenant ids.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
