package model

import "time"

// User represents an application user record as stored in the `users`
// table together with the account types linked through
// `user_account_types`. json tags are omitted; handlers define their own
// response types.
//
// Fields:
//  ID           – primary key identifier of the user.
//  Email        – unique email address.
//  Username     – unique login name.
//  PasswordHash – bcrypt hashed password.
//  AccountTypes – every account type the user holds.
type User struct {
	ID           uint64        // users.id
	Email        string        // users.email
	Username     string        // users.username
	FirstName    string        // users.first_name
	LastName     string        // users.last_name
	PasswordHash string        // users.password_hash
	AccountTypes []AccountType // user_account_types -> account_types
	CreatedAt    time.Time     // users.created_at
	UpdatedAt    time.Time     // users.updated_at
}

// Role returns the effective role of the user: the highest ranked
// built-in role among the account types held. Users holding only custom
// types have no role.
func (u User) Role() Role {
	best := RoleNone
	for _, t := range u.AccountTypes {
		if r, ok := ParseRole(t.Name); ok && r.rank() > best.rank() {
			best = r
		}
	}
	return best
}

// HasRole reports whether the effective role is one of roles.
func (u User) HasRole(roles ...Role) bool {
	r := u.Role()
	if r == RoleNone {
		return false
	}
	for _, want := range roles {
		if r == want {
			return true
		}
	}
	return false
}

// TypeNames returns the names of the held account types in storage order.
func (u User) TypeNames() []string {
	out := make([]string, 0, len(u.AccountTypes))
	for _, t := range u.AccountTypes {
		out = append(out, t.Name)
	}
	return out
}

// AccountType represents a row in the `account_types` table.
//
// Fields:
//  ID   – numeric identifier of the type.
//  Name – unique type name (e.g. ADMIN, GUIDE, TOURIST).
type AccountType struct {
	ID   uint8  // account_types.id
	Name string // account_types.name
}
