package queue

import "errors"

var (
	ErrRepositoryNil   = errors.New("queue: repository cannot be nil")
	ErrPayloadNil      = errors.New("queue: payload cannot be nil")
	ErrNoHandlers      = errors.New("queue: no handlers registered")
	ErrHandlerNotFound = errors.New("queue: handler not found")
	ErrNoTaskToClaim   = errors.New("queue: no task to claim")
	ErrTaskNotFound    = errors.New("queue: task not found")
	ErrWorkerStarted   = errors.New("queue: worker already started")
)
