package accesslog

import "errors"

var (
	// ErrBufferFull is returned when the async writer queue is full and
	// the entry was dropped.
	ErrBufferFull = errors.New("accesslog: buffer full, entry dropped")

	// ErrWriterClosed is returned by Write after Close.
	ErrWriterClosed = errors.New("accesslog: writer closed")
)
