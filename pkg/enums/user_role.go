package enums

// UserRole gates the admin catalog routes.
type UserRole string

const (
	UserRoleBuyer UserRole = "buyer"
	UserRoleAdmin UserRole = "admin"
)

var userRoles = []UserRole{UserRoleBuyer, UserRoleAdmin}

func (r UserRole) String() string { return string(r) }

func (r UserRole) IsValid() bool {
	_, err := ParseUserRole(string(r))
	return err == nil
}

func ParseUserRole(value string) (UserRole, error) {
	return parse("user role", value, value, userRoles)
}
