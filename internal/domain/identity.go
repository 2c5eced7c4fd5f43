package domain

const RoleAdmin = "admin"

// Identity is what the upstream auth layer resolved the caller to.
type Identity struct {
	UserID string
	Phone  string
	Email  string
	Name   string
	Role   string
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}
