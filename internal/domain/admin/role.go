package admin

import (
	"path"
	"sort"
	"strings"

	"github.com/learnpath/academy-hub/internal/domain/shared"
)

// Role is an admin role.
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleEditor     Role = "editor"
	RoleAnalyst    Role = "analyst"
)

// Capability is a single permission checked by route guards.
type Capability string

const (
	CapViewDashboard    Capability = "dashboard:view"
	CapViewAnalytics    Capability = "analytics:view"
	CapManageCourses    Capability = "courses:manage"
	CapManageUsers      Capability = "users:manage"
	CapManageAffiliates Capability = "affiliates:manage"
	CapManagePayouts    Capability = "payouts:manage"
	CapManageSettings   Capability = "settings:manage"
)

// CapabilitySet is an immutable set of capabilities.
type CapabilitySet map[Capability]struct{}

func newSet(caps ...Capability) CapabilitySet {
	s := make(CapabilitySet, len(caps))
	for _, c := range caps {
		s[c] = struct{}{}
	}
	return s
}

// Has reports whether c is in the set.
func (s CapabilitySet) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

// List returns the capabilities sorted for stable output.
func (s CapabilitySet) List() []string {
	out := make([]string, 0, len(s))
	for c := range s {
		out = append(out, string(c))
	}
	sort.Strings(out)
	return out
}

var roleCapabilities = map[Role]CapabilitySet{
	RoleSuperAdmin: newSet(CapViewDashboard, CapViewAnalytics, CapManageCourses, CapManageUsers,
		CapManageAffiliates, CapManagePayouts, CapManageSettings),
	RoleAdmin: newSet(CapViewDashboard, CapViewAnalytics, CapManageCourses, CapManageUsers,
		CapManageAffiliates, CapManagePayouts),
	RoleEditor:  newSet(CapViewDashboard, CapManageCourses),
	RoleAnalyst: newSet(CapViewDashboard, CapViewAnalytics),
}

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	_, ok := roleCapabilities[r]
	return ok
}

// Capabilities looks up the capability set of r.
func (r Role) Capabilities() (CapabilitySet, error) {
	caps, ok := roleCapabilities[r]
	if !ok {
		return nil, shared.ErrUnknownRole
	}
	return caps, nil
}

// routeCapabilities maps admin page prefixes to the capability they require.
// The bare /admin page needs only a valid session. Any other /admin page
// missing from the table requires unrestrictedCapability.
var routeCapabilities = []struct {
	prefix string
	cap    Capability
}{
	{"/admin/analytics", CapViewAnalytics},
	{"/admin/courses", CapManageCourses},
	{"/admin/users", CapManageUsers},
	{"/admin/affiliates", CapManageAffiliates},
	{"/admin/payouts", CapManagePayouts},
	{"/admin/settings", CapManageSettings},
	{"/admin/dashboard", CapViewDashboard},
}

// unrestrictedCapability is held by super admins only.
const unrestrictedCapability = CapManageSettings

// RouteCapability returns the capability guarding p, matching whole path
// segments of the cleaned, lower-cased path. ok is false for paths outside
// /admin.
func RouteCapability(p string) (c Capability, ok bool) {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "", false
	}
	p = strings.ToLower(path.Clean("/" + p))
	if p == "/admin" {
		return "", true
	}
	if !strings.HasPrefix(p, "/admin/") {
		return "", false
	}
	for _, rc := range routeCapabilities {
		if p == rc.prefix || strings.HasPrefix(p, rc.prefix+"/") {
			return rc.cap, true
		}
	}
	return unrestrictedCapability, true
}

// Credential is one row of the admin credential table.
type Credential struct {
	UserID       string `yaml:"id" json:"id"`
	Username     string `yaml:"username" json:"username"`
	DisplayName  string `yaml:"display_name" json:"displayName"`
	Role         Role   `yaml:"role" json:"role"`
	PasswordHash string `yaml:"password_hash" json:"-"`
}

// User returns the public identity of the credential.
func (c Credential) User() User {
	return User{ID: c.UserID, Username: c.Username, DisplayName: c.DisplayName, Role: c.Role}
}
