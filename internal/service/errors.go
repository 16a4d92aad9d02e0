package service

import (
	"errors"
	"fmt"

	"chat-gateway/internal/repository"
)

type Kind string

const (
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindAuthorization     Kind = "authorization"
	KindConflict          Kind = "conflict"
	KindExternalAuthority Kind = "external_authority"
	KindStorage           Kind = "storage"
)

// Error carries a Kind so callers can branch on the class of failure without
// knowing every sentinel.
type Error struct {
	Kind Kind
	Msg  string
	Err  error

	// alias is a broader sentinel this one also matches.
	alias *Error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error with the same kind and message, so a wrapped
// sentinel still satisfies errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.alias != nil && e.alias.Is(t) {
		return true
	}
	return t.Kind == e.Kind && t.Msg == e.Msg
}

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

var (
	ErrEmptyContent       = newError(KindValidation, "message content is empty")
	ErrInvalidSourceType  = newError(KindValidation, "invalid music source type")
	ErrInvalidSlug        = newError(KindValidation, "invalid room slug")
	ErrInvalidName        = newError(KindValidation, "invalid room name")
	ErrInvalidSettings    = newError(KindValidation, "invalid room settings")
	ErrNoMediaPresent     = newError(KindValidation, "message has no media")
	ErrNotACustomRoom     = newError(KindValidation, "not a custom room")
	ErrInvalidAddress     = newError(KindValidation, "caller address is required")
	ErrInvalidInterval    = newError(KindValidation, "announcement interval must be positive")
	ErrInvalidSourceURL   = newError(KindValidation, "music source url is required")
	ErrContentTooLong     = newError(KindValidation, "message content too long")
	ErrRoomNotFound       = newError(KindNotFound, "room not found")
	ErrMessageNotFound    = newError(KindNotFound, "message not found")
	ErrQueueItemNotFound  = newError(KindNotFound, "queue item not found")
	ErrUserNotFound       = newError(KindNotFound, "user not found")
	ErrSnapshotNotFound   = newError(KindNotFound, "snapshot not found")
	ErrAccessDenied       = newError(KindAuthorization, "access denied")
	ErrNotModerator       = newError(KindAuthorization, "moderator privileges required")
	ErrCreatorModerator   = newError(KindAuthorization, "room creator cannot be removed as moderator")
	ErrWorldRoomImmutable = newError(KindAuthorization, "world room settings cannot be changed")
	ErrNameTaken          = newError(KindConflict, "room name already taken")
	ErrSlugTaken          = &Error{Kind: KindConflict, Msg: "room slug already taken", alias: ErrNameTaken}
)

// wrap attaches cause to a copy of sentinel.
func wrap(sentinel *Error, cause error) error {
	return &Error{Kind: sentinel.Kind, Msg: sentinel.Msg, Err: cause, alias: sentinel.alias}
}

func storageError(op string, err error) error {
	return &Error{Kind: KindStorage, Msg: op, Err: err}
}

// notFoundOr maps repository.ErrNotFound onto sentinel and anything else
// onto a storage error.
func notFoundOr(sentinel *Error, op string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return wrap(sentinel, err)
	}
	return storageError(op, err)
}

// IsKind reports whether err, or anything it wraps, is an *Error of kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the kind of err, or KindStorage for anything unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStorage
}

func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}
