package models

import "time"

// RoleName is one of a closed, extensible set of role identifiers.
type RoleName string

const (
	RoleAdmin     RoleName = "admin"
	RoleUser      RoleName = "user"
	RoleModerator RoleName = "moderator"
)

// DefaultRoleName is assigned to every new profile.
const DefaultRoleName = RoleUser

// Display returns the human label of a built-in role name.
func (n RoleName) Display() string {
	switch n {
	case RoleAdmin:
		return "Administrator"
	case RoleUser:
		return "Regular User"
	case RoleModerator:
		return "Moderator"
	default:
		return string(n)
	}
}

// Capability is a single named permission bit.
type Capability string

const (
	CapDeleteUsers     Capability = "delete_users"
	CapEditUsers       Capability = "edit_users"
	CapViewReports     Capability = "view_reports"
	CapModerateContent Capability = "moderate_content"
)

// AllCapabilities lists every capability a Role can carry.
var AllCapabilities = []Capability{CapDeleteUsers, CapEditUsers, CapViewReports, CapModerateContent}

// ParseCapability maps a capability name to its enumerated value.
func ParseCapability(name string) (Capability, bool) {
	switch c := Capability(name); c {
	case CapDeleteUsers, CapEditUsers, CapViewReports, CapModerateContent:
		return c, true
	default:
		return "", false
	}
}

// Capabilities is the fixed set of boolean flags on a Role.
type Capabilities struct {
	DeleteUsers     bool
	EditUsers       bool
	ViewReports     bool
	ModerateContent bool
}

// Has reports whether c grants want. Unknown capabilities are never granted.
func (c Capabilities) Has(want Capability) bool {
	switch want {
	case CapDeleteUsers:
		return c.DeleteUsers
	case CapEditUsers:
		return c.EditUsers
	case CapViewReports:
		return c.ViewReports
	case CapModerateContent:
		return c.ModerateContent
	default:
		return false
	}
}

// Role is a named bundle of capabilities shared by many profiles.
type Role struct {
	ID           string
	Name         RoleName
	Description  string
	Capabilities Capabilities
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
