package rbac

type Role string
type Action string

const (
	RoleViewer Role = "viewer"
	RoleAdmin  Role = "admin"
)

const (
	ActionRead     Action = "read"
	ActionModerate Action = "moderate"
	ActionDelete   Action = "delete"
	ActionManage   Action = "manage"
)

// Can reports whether role may perform action. Every dashboard action needs
// the admin role; unknown actions are denied.
func Can(role Role, action Action) bool {
	switch action {
	case ActionRead, ActionModerate, ActionDelete, ActionManage:
		return role == RoleAdmin
	default:
		return false
	}
}

// FromClaim maps the admin claim carried on an access token to a role.
func FromClaim(admin bool) Role {
	if admin {
		return RoleAdmin
	}
	return RoleViewer
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleViewer, RoleAdmin:
		return Role(role)
	default:
		return RoleViewer
	}
}
