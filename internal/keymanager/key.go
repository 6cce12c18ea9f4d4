// Package keymanager implements the capability-scoped API keys that gate
// gafferd's control plane: superuser/manage/write/read permission sets,
// evaluated per job or session, with a bounded in-memory cache in front of
// a durable keystore.Backend.
package keymanager

import (
	"strings"

	"github.com/RevCBH/gafferd/internal/gafferr"
)

// Permission is one of the three scoped rights a Key can hold.
type Permission string

const (
	PermManage Permission = "manage"
	PermWrite  Permission = "write"
	PermRead   Permission = "read"
)

// Key is an API key and the scopes it grants. Manage implies Write implies
// Read (spec'd implication chain), and each scope may additionally hold the
// wildcard "*" granting it over every job/session.
type Key struct {
	APIKey      string
	Label       string
	Permissions map[string]any

	Manage map[string]struct{}
	Write  map[string]struct{}
	Read   map[string]struct{}
}

// Record is the dump()/load() wire shape stored by keystore.Backend and
// round-tripped by set_key/get_key and the admin dump/load commands.
type Record struct {
	Key         string         `json:"key"`
	Label       string         `json:"label,omitempty"`
	Permissions map[string]any `json:"permissions,omitempty"`
}

// NewKey builds a Key from label and a raw permissions map whose "manage",
// "write", and "read" entries are lists of job/session scope strings (or
// "*"). Each of Manage, Write, and Read is populated from its own entry —
// manage implies write implies read at check time, so the sets themselves
// must stay independent.
func NewKey(apiKey, label string, permissions map[string]any) *Key {
	k := &Key{
		APIKey:      apiKey,
		Label:       label,
		Permissions: permissions,
	}
	k.Manage = scopeSet(permissions, "manage")
	k.Write = scopeSet(permissions, "write")
	k.Read = scopeSet(permissions, "read")
	return k
}

func scopeSet(permissions map[string]any, field string) map[string]struct{} {
	out := make(map[string]struct{})
	raw, ok := permissions[field]
	if !ok {
		return out
	}
	switch v := raw.(type) {
	case []string:
		for _, s := range v {
			out[s] = struct{}{}
		}
	case []any:
		for _, s := range v {
			if str, ok := s.(string); ok {
				out[str] = struct{}{}
			}
		}
	}
	return out
}

// LoadRecord validates and converts a Record into a Key. Returns gafferr
// InvalidKey if the key field is absent, mirroring the original's
// Key.load raising InvalidKey when "key" is missing from the object.
func LoadRecord(r Record) (*Key, error) {
	if r.Key == "" {
		return nil, gafferr.InvalidKey("missing key field")
	}
	return NewKey(r.Key, r.Label, r.Permissions), nil
}

// Dump converts the Key back into its wire Record.
func (k *Key) Dump() Record {
	return Record{Key: k.APIKey, Label: k.Label, Permissions: k.Permissions}
}

func (k *Key) String() string { return "Key: " + k.APIKey }

// IsSuperuser reports whether the key's permissions grant superuser,
// bypassing all scope checks.
func (k *Key) IsSuperuser() bool {
	su, _ := k.Permissions["superuser"].(bool)
	return su
}

// CanCreateKey reports whether this key may create subordinate keys.
func (k *Key) CanCreateKey() bool {
	v, _ := k.Permissions["create_key"].(bool)
	return v
}

// CanCreateUser reports whether this key may create user-level keys.
func (k *Key) CanCreateUser() bool {
	v, _ := k.Permissions["create_user"].(bool)
	return v
}

// CanManage tests the "manage" permission for a job or "session.job" scope.
func (k *Key) CanManage(jobOrSession string) bool {
	return k.can(PermManage, jobOrSession)
}

// CanWrite tests the "write" permission, which manage implies.
func (k *Key) CanWrite(jobOrSession string) bool {
	if k.CanManage(jobOrSession) {
		return true
	}
	return k.can(PermWrite, jobOrSession)
}

// CanRead tests the "read" permission, which write (and so manage) implies.
func (k *Key) CanRead(jobOrSession string) bool {
	if k.CanWrite(jobOrSession) {
		return true
	}
	return k.can(PermRead, jobOrSession)
}

// can implements the core scope-matching algorithm: superuser bypass,
// wildcard, dotted "session.job" split, then exact match. An unrecognized
// permission returns false; Can is where UnknownPermission is reported.
func (k *Key) can(permission Permission, what string) bool {
	if k.IsDummy() || k.IsSuperuser() {
		return true
	}

	set, ok := k.scopeFor(permission)
	if !ok {
		return false
	}

	if _, all := set["*"]; all {
		return true
	}

	if idx := strings.IndexByte(what, '.'); idx >= 0 {
		session := what[:idx]
		if _, ok := set[session]; ok {
			return true
		}
	}

	_, ok = set[what]
	return ok
}

func (k *Key) scopeFor(permission Permission) (map[string]struct{}, bool) {
	switch permission {
	case PermManage:
		return k.Manage, true
	case PermWrite:
		return k.Write, true
	case PermRead:
		return k.Read, true
	default:
		return nil, false
	}
}

// Can evaluates an arbitrary permission name against what, returning
// gafferr UnknownPermission for anything outside read/write/manage.
func (k *Key) Can(permission string, what string) (bool, error) {
	if k.IsDummy() {
		return true, nil
	}
	switch Permission(permission) {
	case PermManage:
		return k.CanManage(what), nil
	case PermWrite:
		return k.CanWrite(what), nil
	case PermRead:
		return k.CanRead(what), nil
	default:
		return false, gafferr.UnknownPermission(permission)
	}
}

// NewDummyKey returns the permissive key gafferd's control plane falls back
// to when started with authentication disabled: every Can check succeeds,
// but it can never create keys or users and is never treated as superuser.
func NewDummyKey() *Key {
	return &dummyKey
}

var dummyKey = Key{APIKey: "dummy"}

// IsDummy reports whether k is the no-auth sentinel key.
func (k *Key) IsDummy() bool {
	return k == &dummyKey
}
