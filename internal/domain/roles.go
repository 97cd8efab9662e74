package domain

import "strings"

type Role string

const (
	// Full back-office access, including user administration.
	RoleAdmin Role = "admin"
	// Pharmacy staff: dispensing, orders, prescriptions.
	RoleStaff Role = "staff"
	// Supervises assistants and handles escalated complaints.
	RoleSupervisor Role = "supervisor"
	// Counter assistant.
	RoleAssistant Role = "assistant"
	// End customer of the pharmacy.
	RoleCustomer Role = "customer"
)

// Roles lists every known role.
var Roles = []Role{RoleAdmin, RoleStaff, RoleSupervisor, RoleAssistant, RoleCustomer}

func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Roles {
		if r == known {
			return r, true
		}
	}
	return "", false
}

func IsValidRole(r string) bool {
	_, ok := ParseRole(r)
	return ok
}

func (r Role) String() string { return string(r) }
