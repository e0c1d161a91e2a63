package models

import "slices"

const (
	RoleAdmin    = "admin"
	RoleStaff    = "staff"
	RoleDriver   = "driver"
	RoleCustomer = "customer"
)

// Identity of a caller as resolved by the auth collaborator.
// It is either Authenticated or Anonymous; callers switch on the concrete type.
type Identity interface {
	isIdentity()
}

type Authenticated struct {
	UserID string
	Roles  []string
}

type Anonymous struct{}

func (Authenticated) isIdentity() {}
func (Anonymous) isIdentity()     {}

func (a Authenticated) HasRole(roles ...string) bool {
	for _, r := range roles {
		if slices.Contains(a.Roles, r) {
			return true
		}
	}
	return false
}

// IsOperator - сотрудник, курьер или админ.
func (a Authenticated) IsOperator() bool {
	return a.HasRole(RoleStaff, RoleAdmin, RoleDriver)
}

// UserIDOf returns the user id for Authenticated and "" for Anonymous.
func UserIDOf(id Identity) string {
	if a, ok := id.(Authenticated); ok {
		return a.UserID
	}
	return ""
}
