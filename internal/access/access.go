// Package access decides which requisitions an identity may see and which
// administrative actions it may take.
//
// VisibleFor is a pure projection. Callers recompute it from the current
// snapshot on every render instead of caching the result.
package access

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/reqsync/internal/model"
)

// SeesEverything reports whether the role views the unfiltered snapshot.
func SeesEverything(r model.Role) bool {
	return r == model.RoleManager || r == model.RoleOperations
}

// VisibleFor projects the snapshot onto what u may see. Managers and
// operations staff get s itself; everyone else gets the records assigned to
// them as fitter or created by them. The empty identity sees nothing.
func VisibleFor(u model.User, s model.Snapshot) model.Snapshot {
	if u.IsZero() {
		return model.Snapshot{}
	}
	if SeesEverything(u.Role) {
		return s
	}
	name := foldName(u.Name)
	out := make(model.Snapshot, 0, len(s))
	for _, r := range s {
		if r.CreatedBy == u.Username || (name != "" && foldName(r.Fitter) == name) {
			out = append(out, r)
		}
	}
	return out
}

// CanDelete reports whether u may delete requisitions.
func CanDelete(u model.User) bool {
	return u.Role == model.RoleManager
}

// CanManageUsers reports whether u may create, edit and delete accounts.
func CanManageUsers(u model.User) bool {
	return u.Role == model.RoleManager
}

// foldName normalizes a display name for caseless comparison.
// A Caser is stateful, so a fresh one is built per call.
func foldName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return cases.Fold().String(norm.NFC.String(s))
}
