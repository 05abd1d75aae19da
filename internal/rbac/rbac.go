package rbac

type Role string
type Action string

const (
	RoleObserver Role = "observer"
	RoleMember   Role = "member"
	RoleAdmin    Role = "admin"
	RoleOwner    Role = "owner"
)

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionManage Action = "manage"
	ActionDelete Action = "delete"
)

// Can reports whether a board role permits an action. Write covers every
// structural mutation (lists, tasks, comments, labels); Manage covers
// membership changes; Delete covers deleting the board itself.
func Can(role Role, action Action) bool {
	switch role {
	case RoleOwner:
		return true
	case RoleAdmin:
		return action == ActionRead || action == ActionWrite || action == ActionManage
	case RoleMember:
		return action == ActionRead || action == ActionWrite
	case RoleObserver:
		return action == ActionRead
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleObserver, RoleMember, RoleAdmin, RoleOwner:
		return Role(role)
	default:
		return RoleObserver
	}
}
