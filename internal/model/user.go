package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role is an account's permission level.
type Role string

const (
	RoleManager    Role = "manager"
	RoleOperations Role = "operations"
	RoleFitter     Role = "fitter"
)

// ReservedUsername can never be deleted.
const ReservedUsername = "admin"

// roleNames maps every accepted spelling to its canonical role.
var roleNames = map[string]Role{
	"manager":     RoleManager,
	"gestor":      RoleManager,
	"operations":  RoleOperations,
	"operacional": RoleOperations,
	"fitter":      RoleFitter,
	"montador":    RoleFitter,
}

// wireNames are the role names the remote sheet stores.
var wireNames = map[Role]string{
	RoleManager:    "gestor",
	RoleOperations: "operacional",
	RoleFitter:     "montador",
}

// ParseRole resolves canonical and sheet role names, case-insensitively.
func ParseRole(s string) (Role, bool) {
	r, ok := roleNames[strings.ToLower(strings.TrimSpace(s))]
	return r, ok
}

// Valid reports whether r is one of the three canonical roles.
func (r Role) Valid() bool {
	_, ok := wireNames[r]
	return ok
}

// MarshalJSON writes the sheet's role name.
func (r Role) MarshalJSON() ([]byte, error) {
	if name, ok := wireNames[r]; ok {
		return json.Marshal(name)
	}
	return json.Marshal(string(r))
}

// UnmarshalJSON reads either spelling. Unknown names are kept as-is so that
// validation can report them.
func (r *Role) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("role: %w", err)
	}
	if parsed, ok := ParseRole(s); ok {
		*r = parsed
		return nil
	}
	*r = Role(s)
	return nil
}

// User is an authenticated identity.
type User struct {
	Username string `json:"username" validate:"required,max=64"`
	Name     string `json:"name" validate:"required,max=120"`
	Role     Role   `json:"role" validate:"required,oneof=manager operations fitter"`
}

// IsZero reports whether u is the empty identity.
func (u User) IsZero() bool {
	return u.Username == ""
}
