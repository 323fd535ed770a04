package appfw

import (
	"fmt"
	"os/user"
	"strconv"

	"go-appfw/internal/core"
)

// Target selects the applications an event is sent to. Zero fields are
// ignored; at least one must be set. User is a login name.
type Target struct {
	Label   string
	AppID   string
	Binary  string
	User    string
	Process int
}

// IsZero reports whether no field is set.
func (t Target) IsZero() bool {
	return t.Label == "" && t.AppID == "" && t.Binary == "" && t.User == "" && t.Process == 0
}

// UserLookup maps a login name to a numeric user id.
type UserLookup func(name string) (int, error)

// LookupUser resolves name through the system user database.
func LookupUser(name string) (int, error) {
	u, err := user.Lookup(name)
	if err != nil {
		return 0, err
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return 0, fmt.Errorf("uid %q of %s: %w", u.Uid, name, err)
	}
	return uid, nil
}

// encodeTarget converts t to its wire form, resolving the user name.
func encodeTarget(t Target, lookup UserLookup) (core.Target, error) {
	out := core.Target{
		Label:   t.Label,
		AppID:   t.AppID,
		Binary:  t.Binary,
		Process: t.Process,
	}
	if t.User != "" {
		if lookup == nil {
			lookup = LookupUser
		}
		uid, err := lookup(t.User)
		if err != nil {
			return core.Target{}, &TargetError{Field: "user", Err: fmt.Errorf("lookup %q: %w", t.User, err)}
		}
		out.User = &uid
	}
	return out, nil
}
