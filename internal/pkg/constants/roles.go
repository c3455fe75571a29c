package constants

const (
	Owner  = "owner"
	Admin  = "admin"
	Member = "member"
)

// ValidRoles is the set of allowed values for a user's role within an org.
var ValidRoles = []string{Member, Admin, Owner}

// IsValidRole returns true if role is one of the allowed values.
func IsValidRole(role string) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}
