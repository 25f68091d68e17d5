package types

import "time"

// Role names seeded by the migrations.
const (
	RoleAdmin = "admin"
	RoleOwner = "owner"
	RoleUser  = "user"
)

// User represents an account in the store.
// It contains identity, profile, role assignments, and audit metadata.
type User struct {
	// ID is the UUID of the user.
	ID string `json:"id" db:"id"`

	// Email is the unique login address. It is also an alternate lookup key.
	Email string `json:"email" db:"email"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password"`

	// FirstName is the user's given name.
	FirstName string `json:"firstName" db:"first_name"`

	// LastName is the user's family name.
	LastName string `json:"lastName" db:"last_name"`

	// Phone is an optional E.164 phone number.
	Phone string `json:"phone,omitempty" db:"phone"`

	// Active gates authentication. Inactive users cannot sign in and their
	// outstanding tokens stop verifying.
	Active bool `json:"active" db:"active"`

	// Roles are the names of the roles assigned to the user.
	Roles []string `json:"roles" db:"-"`

	// CreatedAt is set by the server when the account is created.
	// It is cleared on public reads.
	CreatedAt *time.Time `json:"createdAt,omitempty" db:"created_at"`

	// UpdatedAt is set by the server on every write.
	// It is cleared on public reads.
	UpdatedAt *time.Time `json:"updatedAt,omitempty" db:"updated_at"`
}

// Public returns a copy of the user stripped of the password hash and timestamps.
func (u User) Public() User {
	u.PasswordHash = ""
	u.CreatedAt = nil
	u.UpdatedAt = nil
	return u
}

// Role is a named permission group assigned to users.
type Role struct {
	// ID is the serial identifier of the role.
	ID int `json:"id" db:"id"`

	// Name is the unique role name, e.g. "admin".
	Name string `json:"name" db:"name"`
}
