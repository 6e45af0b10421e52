package entity

import "time"

// Role identifies what a user is allowed to do in the approval flow
type Role string

const (
	RoleEmployee Role = "EMPLOYEE"
	RoleManager  Role = "MANAGER"
	RoleFinance  Role = "FINANCE"
	RoleCFO      Role = "CFO"
	RoleAdmin    Role = "ADMIN"
)

// UserStatus constants
const (
	UserStatusActive   = "ACTIVE"
	UserStatusInactive = "INACTIVE"
)

// User is the locally persisted projection of an identity-provider account.
// The service trusts the identity layer for authentication; this record exists
// for approver resolution and notification addressing.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	EmployeeID   string    `json:"employee_id"`
	Role         Role      `json:"role"`
	Status       string    `json:"status"`
	DepartmentID string    `json:"department_id,omitempty"`
	ManagerID    string    `json:"manager_id,omitempty"`
	PhoneNumber  string    `json:"phone_number,omitempty"`
	Position     string    `json:"position,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// FullName returns the display name used in notifications
func (u *User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// IsActive reports whether the user can act as an approver
func (u *User) IsActive() bool {
	return u.Status == UserStatusActive
}

// Department groups users and scopes budgets and approval policies
type Department struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Actor is the authenticated identity attached to every core operation.
// Populated by the HTTP auth middleware from the bearer token.
type Actor struct {
	UserID       string `json:"user_id"`
	Role         Role   `json:"role"`
	DepartmentID string `json:"department_id,omitempty"`
}
