package domain

// Role is the privilege level carried by an operator token.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleViewer Role = "viewer"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleViewer
}

// ActorReconciler identifies balance corrections made by the reconciliation pass.
const ActorReconciler = "system:reconciler"
