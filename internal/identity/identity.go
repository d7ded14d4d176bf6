// Package identity defines the roles a dashboard user can hold and the
// municipality/business scope each role is confined to.
package identity

import (
	"context"
	"fmt"
)

// Role is the access level of an authenticated user.
type Role string

const (
	RoleSuperAdmin       Role = "super_admin"
	RoleCreator          Role = "creator"
	RoleMunicipalityUser Role = "municipality_user"
	RoleBusinessUser     Role = "business_user"
)

// Roles lists every valid role.
var Roles = []Role{RoleSuperAdmin, RoleCreator, RoleMunicipalityUser, RoleBusinessUser}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleCreator, RoleMunicipalityUser, RoleBusinessUser:
		return true
	default:
		return false
	}
}

// ParseRole converts a string into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// User is the current user as seen by the workflow engine.
// MunicipalityID is set for municipality users, BusinessID for business users.
type User struct {
	ID             int64  `json:"id"`
	Role           Role   `json:"role"`
	MunicipalityID *int64 `json:"municipalityId,omitempty"`
	BusinessID     *int64 `json:"businessId,omitempty"`
}

// IsGlobal reports whether the user sees every municipality and business.
func (u *User) IsGlobal() bool {
	if u == nil {
		return false
	}
	return u.Role == RoleSuperAdmin || u.Role == RoleCreator
}

// InScope reports whether an entity owned by businessID, which belongs to
// municipalityID, is visible to the user. A nil user sees nothing.
func (u *User) InScope(municipalityID, businessID int64) bool {
	if u == nil {
		return false
	}
	switch u.Role {
	case RoleSuperAdmin, RoleCreator:
		return true
	case RoleMunicipalityUser:
		return u.MunicipalityID != nil && *u.MunicipalityID == municipalityID
	case RoleBusinessUser:
		return u.BusinessID != nil && *u.BusinessID == businessID
	default:
		return false
	}
}

// Validate checks that the scope fields required by the role are present.
func (u *User) Validate() error {
	if !u.Role.Valid() {
		return fmt.Errorf("unknown role %q", u.Role)
	}
	switch u.Role {
	case RoleMunicipalityUser:
		if u.MunicipalityID == nil {
			return fmt.Errorf("role %s requires a municipality", u.Role)
		}
	case RoleBusinessUser:
		if u.BusinessID == nil {
			return fmt.Errorf("role %s requires a business", u.Role)
		}
	}
	return nil
}

type contextKey struct{}

// WithUser returns a copy of ctx carrying u.
func WithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, contextKey{}, u)
}

// FromContext returns the user stored in ctx, if any.
func FromContext(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(contextKey{}).(*User)
	return u, ok && u != nil
}
