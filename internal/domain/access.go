package domain

import (
	"sort"
	"strings"
)

// Area is a protected path prefix and the roles allowed inside it.
type Area struct {
	Prefix  string
	Allowed []Role
}

// Single source of truth for role -> landing page and area -> roles.
var (
	dashboards = map[Role]string{
		RoleAdmin:      "/admin/dashboard",
		RoleStaff:      "/staff/dashboard",
		RoleSupervisor: "/supervisor/dashboard",
		RoleAssistant:  "/assistant/dashboard",
		RoleCustomer:   "/customer/dashboard",
	}

	areas = sortedAreas([]Area{
		{Prefix: "/admin", Allowed: []Role{RoleAdmin}},
		{Prefix: "/staff", Allowed: []Role{RoleAdmin, RoleStaff}},
		{Prefix: "/supervisor", Allowed: []Role{RoleAdmin, RoleSupervisor}},
		{Prefix: "/assistant", Allowed: []Role{RoleAdmin, RoleSupervisor, RoleAssistant}},
		{Prefix: "/customer", Allowed: []Role{RoleAdmin, RoleCustomer}},
		// generic landing area, every role may enter
		{Prefix: "/dashboard", Allowed: Roles},
	})
)

// sortedAreas orders areas longest prefix first so the most specific one wins.
func sortedAreas(in []Area) []Area {
	out := append([]Area(nil), in...)
	sort.SliceStable(out, func(i, j int) bool { return len(out[i].Prefix) > len(out[j].Prefix) })
	return out
}

// DashboardFor returns the default landing page of a role.
// Unknown roles land on the generic dashboard.
func DashboardFor(r Role) string {
	if p, ok := dashboards[r]; ok {
		return p
	}
	return "/dashboard"
}

// Areas returns a copy of the area table, most specific prefix first.
func Areas() []Area {
	return append([]Area(nil), areas...)
}

// AreaFor returns the most specific area containing path.
func AreaFor(path string) (Area, bool) {
	for _, a := range areas {
		if HasPathPrefix(path, a.Prefix) {
			return a, true
		}
	}
	return Area{}, false
}

// CanAccess reports whether role may enter path. Paths outside every area
// only require an authenticated role.
func CanAccess(r Role, path string) bool {
	a, ok := AreaFor(path)
	if !ok {
		return true
	}
	for _, allowed := range a.Allowed {
		if allowed == r {
			return true
		}
	}
	return false
}

// HasPathPrefix is a segment-aware prefix match: "/admin" matches "/admin"
// and "/admin/users" but not "/administrator". A prefix ending in "/" matches
// anything below it.
func HasPathPrefix(path, prefix string) bool {
	if prefix == "" {
		return false
	}
	if strings.HasSuffix(prefix, "/") {
		return strings.HasPrefix(path, prefix) || path == strings.TrimSuffix(prefix, "/")
	}
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+"/")
}
