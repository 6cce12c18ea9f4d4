// Package gafferr defines the typed errors returned by gafferd's core
// components. Callers use errors.As to recover the Kind and the offending
// name rather than matching on error strings.
package gafferr

import "fmt"

// Kind identifies the category of a gafferd error.
type Kind int

const (
	// KindJobExists indicates add_job was called for a name already managed.
	KindJobExists Kind = iota
	// KindJobNotFound indicates an operation referenced an unknown job.
	KindJobNotFound
	// KindSpawnFailed indicates the OS refused to start a process (exec
	// lookup failure, permission denied, fork failure).
	KindSpawnFailed
	// KindKeyNotFound indicates a key lookup missed in both cache and backend.
	KindKeyNotFound
	// KindKeyConflict indicates set_key was asked to create a key that
	// already exists.
	KindKeyConflict
	// KindInvalidKey indicates a key record failed to parse or was missing
	// a required field such as "key".
	KindInvalidKey
	// KindUnknownPermission indicates a permission string outside the
	// read/write/manage vocabulary was presented to can().
	KindUnknownPermission
)

func (k Kind) String() string {
	switch k {
	case KindJobExists:
		return "job_exists"
	case KindJobNotFound:
		return "job_not_found"
	case KindSpawnFailed:
		return "spawn_failed"
	case KindKeyNotFound:
		return "key_not_found"
	case KindKeyConflict:
		return "key_conflict"
	case KindInvalidKey:
		return "invalid_key"
	case KindUnknownPermission:
		return "unknown_permission"
	default:
		return "unknown"
	}
}

// Error is a typed gafferd error. Name carries the job/key/permission name
// implicated, if any. Err, when set, is the wrapped underlying cause.
type Error struct {
	Kind Kind
	Name string
	Err  error
}

func (e *Error) Error() string {
	if e.Name == "" && e.Err == nil {
		return e.Kind.String()
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Name)
	}
	if e.Name == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Name, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, gafferr.JobNotFound) match any *Error of that Kind,
// regardless of Name or wrapped cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Name != "" && t.Name != e.Name {
		return false
	}
	return t.Kind == e.Kind
}

func newErr(k Kind, name string, err error) *Error {
	return &Error{Kind: k, Name: name, Err: err}
}

// JobExists builds a KindJobExists error for the named job.
func JobExists(name string) error { return newErr(KindJobExists, name, nil) }

// JobNotFound builds a KindJobNotFound error for the named job.
func JobNotFound(name string) error { return newErr(KindJobNotFound, name, nil) }

// SpawnFailed wraps the OS-level cause of a failed process start.
func SpawnFailed(name string, cause error) error { return newErr(KindSpawnFailed, name, cause) }

// KeyNotFound builds a KindKeyNotFound error for the given API key.
func KeyNotFound(key string) error { return newErr(KindKeyNotFound, key, nil) }

// KeyConflict builds a KindKeyConflict error for the given API key.
func KeyConflict(key string) error { return newErr(KindKeyConflict, key, nil) }

// InvalidKey wraps a parse/validation failure on a key record.
func InvalidKey(reason string) error { return newErr(KindInvalidKey, "", fmt.Errorf("%s", reason)) }

// UnknownPermission builds a KindUnknownPermission error for the given
// permission string.
func UnknownPermission(perm string) error { return newErr(KindUnknownPermission, perm, nil) }

// Sentinels for errors.Is comparisons that don't care about Name/cause.
var (
	ErrJobExists         = &Error{Kind: KindJobExists}
	ErrJobNotFound       = &Error{Kind: KindJobNotFound}
	ErrSpawnFailed       = &Error{Kind: KindSpawnFailed}
	ErrKeyNotFound       = &Error{Kind: KindKeyNotFound}
	ErrKeyConflict       = &Error{Kind: KindKeyConflict}
	ErrInvalidKey        = &Error{Kind: KindInvalidKey}
	ErrUnknownPermission = &Error{Kind: KindUnknownPermission}
)
