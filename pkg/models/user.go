package models

// Role is an organization-level role carried by a directory user.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleHR      Role = "hr"
	RoleIT      Role = "it"
	RoleManager Role = "manager"
	RoleMember  Role = "member"
)

// Elevated reports whether the role grants visibility into role-assigned
// (hr/it) task queues.
func (r Role) Elevated() bool {
	return r == RoleAdmin || r == RoleHR || r == RoleIT
}

// UserProfile is the directory projection of an account: enough to render
// display names and decide role-based task visibility. Account management
// itself lives outside this core.
type UserProfile struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      Role   `json:"role"`
}

// DisplayName returns "First Last", falling back to the email when the
// name fields are empty.
func (u *UserProfile) DisplayName() string {
	if u.FirstName == "" && u.LastName == "" {
		return u.Email
	}

	if u.FirstName == "" {
		return u.LastName
	}

	if u.LastName == "" {
		return u.FirstName
	}

	return u.FirstName + " " + u.LastName
}
