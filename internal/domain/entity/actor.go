package entity

// Roles conocidos en el token.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleClerk   = "clerk"
)

// Actor usuario que origina una operación (extraído del token por el middleware).
type Actor struct {
	ID          string
	DisplayName string
	BusinessID  string
	Role        string
	LocationIDs []string // ubicaciones asignadas; vacío = ninguna salvo admin
}
