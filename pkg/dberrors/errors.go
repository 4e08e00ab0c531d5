package dberrors

import "errors"

var (
	ErrClosed          = errors.New("lsmversion: closed")
	ErrInvalidArgument = errors.New("lsmversion: invalid argument")
	ErrBufferSealed    = errors.New("lsmversion: shared buffer sealed")
	ErrEmptyBatch      = errors.New("lsmversion: empty write batch")
	ErrEpochCommitted  = errors.New("lsmversion: epoch already committed")
	ErrUnknownTask     = errors.New("lsmversion: unknown upload task")
)
