package models

type Role string

const (
	RoleNone   Role = ""
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
	RoleAdmin  Role = "admin"
	RoleSystem Role = "system"
)

// SystemUserID is recorded as the actor of automatic transitions. It is reserved and
// never identifies an authenticated caller.
const SystemUserID = "system"

// Actor is the explicit caller identity passed into every lifecycle operation.
type Actor struct {
	UserID string
	Admin  bool

	system bool
}

// SystemActor is the only actor for which IsSystem reports true. Callers outside this
// package cannot build one from a user id.
var SystemActor = Actor{UserID: SystemUserID, system: true}

func (a Actor) IsSystem() bool {
	return a.system
}
