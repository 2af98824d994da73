package biz

// Role is a coarse permission granted to an authenticated principal.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole maps a claim value onto a known role. Unknown values
// degrade to RoleUser.
func ParseRole(s string) Role {
	if Role(s) == RoleAdmin {
		return RoleAdmin
	}
	return RoleUser
}

// Identity is an already-authenticated caller. The zero value is anonymous.
type Identity struct {
	UserID string
	Email  string
	Roles  []Role
}

// NewIdentity builds an identity from validated token claims.
func NewIdentity(userID, email string, roles ...Role) Identity {
	return Identity{UserID: userID, Email: email, Roles: roles}
}

func (id Identity) IsAnonymous() bool {
	return id.UserID == ""
}

func (id Identity) HasRole(role Role) bool {
	for _, r := range id.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// CanManage reports whether id may perform owner-only operations on a
// resource owned by ownerID. Anonymous transfers (empty ownerID) can only
// be managed by admins.
func CanManage(id Identity, ownerID string) bool {
	if id.HasRole(RoleAdmin) {
		return true
	}
	return !id.IsAnonymous() && ownerID != "" && id.UserID == ownerID
}
