package models

type Role string

const (
	RoleCustomer   Role = "customer"
	RoleStaff      Role = "staff"
	RoleSuperAdmin Role = "super_admin"
)

// Actor is the authenticated caller of a booking operation.
type Actor struct {
	UserID      int64   `json:"user_id"`
	Role        Role    `json:"role"`
	PropertyIDs []int64 `json:"property_ids,omitempty"`
}

func (a Actor) IsStaffOf(propertyID int64) bool {
	if a.Role != RoleStaff {
		return false
	}
	for _, id := range a.PropertyIDs {
		if id == propertyID {
			return true
		}
	}
	return false
}

func (a Actor) IsSuperAdmin() bool {
	return a.Role == RoleSuperAdmin
}
