// Package models defines the database model types for the EMS API.
// Each type corresponds to a table; db tags drive sqlx scanning and json tags
// shape API responses. Credentials and encrypted columns never serialise.
package models

import "time"

// Role is a user's fixed access level.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleStaff     Role = "staff"
	RoleManager   Role = "manager"
	RoleInstaller Role = "installer"
	RoleCustomer  Role = "customer"
)

// AllRoles returns every valid role.
func AllRoles() []Role {
	return []Role{RoleAdmin, RoleStaff, RoleManager, RoleInstaller, RoleCustomer}
}

// Valid reports whether r is one of the fixed roles.
func (r Role) Valid() bool {
	for _, known := range AllRoles() {
		if r == known {
			return true
		}
	}
	return false
}

// User represents an account that can sign in to the dashboard or API.
type User struct {
	ID                     int64      `db:"id" json:"id"`
	Name                   string     `db:"name" json:"name"`
	Email                  string     `db:"email" json:"email"`
	Password               string     `db:"password" json:"-"`
	Role                   Role       `db:"role" json:"role"`
	Status                 string     `db:"status" json:"status"`
	IsSuspended            bool       `db:"is_suspended" json:"is_suspended"`
	CustomerID             *int64     `db:"customer_id" json:"customer_id"`
	EmailVerifiedAt        *time.Time `db:"email_verified_at" json:"email_verified_at"`
	TwoFactorSecret        *string    `db:"two_factor_secret" json:"-"`
	TwoFactorRecoveryCodes *string    `db:"two_factor_recovery_codes" json:"-"`
	TwoFactorConfirmedAt   *time.Time `db:"two_factor_confirmed_at" json:"two_factor_confirmed_at"`
	CreatedAt              time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time  `db:"updated_at" json:"updated_at"`
}

// TwoFactorEnabled requires both a confirmation timestamp and a stored secret.
func (u *User) TwoFactorEnabled() bool {
	return u.TwoFactorConfirmedAt != nil && u.TwoFactorSecret != nil && *u.TwoFactorSecret != ""
}

// HasRole reports whether the user holds any of roles.
func (u *User) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if u.Role == r {
			return true
		}
	}
	return false
}

// UserUpdate is the explicit set of fields an administrator may change.
// Nil fields are left untouched.
type UserUpdate struct {
	Name        *string `json:"name"`
	Email       *string `json:"email"`
	Role        *Role   `json:"role"`
	Status      *string `json:"status"`
	IsSuspended *bool   `json:"is_suspended"`
	CustomerID  *int64  `json:"customer_id"`
}

// Empty reports whether the update changes nothing.
func (u UserUpdate) Empty() bool {
	return u.Name == nil && u.Email == nil && u.Role == nil && u.Status == nil &&
		u.IsSuspended == nil && u.CustomerID == nil
}

// RoleCount is one row of the users-by-role aggregate.
type RoleCount struct {
	Role  Role `db:"role" json:"role"`
	Count int  `db:"total" json:"total"`
}
