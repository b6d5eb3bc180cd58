package services

import (
	"errors"

	"stackit/internal/store"
)

// Service-level error taxonomy. Handlers map these onto HTTP status codes in
// one place; nothing below this layer formats responses.
var (
	// ErrNotFound re-exports the store sentinel so callers only import this
	// package.
	ErrNotFound = store.ErrNotFound
	// ErrConflict means a concurrent writer won the race; one retry is safe.
	ErrConflict = store.ErrConflict
	// ErrTransient marks a store timeout or outage; safe to retry with backoff.
	ErrTransient = store.ErrTransient

	ErrNotAuthorized  = errors.New("not authorized")
	ErrSelfVote       = errors.New("cannot vote on your own answer")
	ErrQuestionClosed = errors.New("question is closed")
	ErrContentTooLong = errors.New("content exceeds maximum length")
	ErrInvalidInput   = errors.New("invalid input")
	// ErrCapacityDropped marks a notification shed by the unread cap. It is
	// logged, never surfaced: the triggering action still succeeded.
	ErrCapacityDropped = errors.New("notification dropped: unread cap reached")
)
