package model

import "time"

// Roles a user account can hold. The role is fixed at creation.
const (
	RoleCustomer = "customer"
	RoleProvider = "provider"
)

// User represents an identity record in the `users` table.
//
// Password holds a bcrypt hash for accounts created by this codebase.
// Rows imported from the legacy system may still hold plaintext; those are
// rehashed transparently on the first successful login.
type User struct {
	ID              string    `json:"id"`              // users.id (uuid)
	Username        string    `json:"username"`        // users.username (unique)
	Password        string    `json:"-"`               // users.password (bcrypt hash)
	Role            string    `json:"role"`            // users.role ("customer" | "provider")
	EmployeeID      string    `json:"employeeId"`      // users.employee_id (providers only)
	FirstName       string    `json:"firstName"`       // users.first_name
	LastName        string    `json:"lastName"`        // users.last_name
	PhoneNumber     string    `json:"phoneNumber"`     // users.phone_number
	ProfileImageURL string    `json:"profileImageUrl"` // users.profile_image_url
	CreatedAt       time.Time `json:"createdAt"`       // users.created_at
}
