package roles

import "github.com/slotwise/slotwise-core/pkg/permissions"

// Predefined non-owner role slugs. Invitations may only carry one of
// these; tenant-specific custom roles are assigned by id instead.
const (
	SlugAdmin      = "admin"
	SlugManager    = "manager"
	SlugStaff      = "staff"
	SlugAccountant = "accountant"
)

// PredefinedSlugs are the assignable role slugs seeded for every tenant.
var PredefinedSlugs = []string{SlugAdmin, SlugManager, SlugStaff, SlugAccountant}

// IsPredefinedSlug reports whether slug is one of the seeded
// non-owner roles.
func IsPredefinedSlug(slug string) bool {
	for _, s := range PredefinedSlugs {
		if s == slug {
			return true
		}
	}
	return false
}

// seedTemplate describes a role created for every new tenant.
type seedTemplate struct {
	Name         string
	Slug         string
	IsSystemRole bool
	IsDefault    bool
	Permissions  permissions.Map
}

// seedTemplates returns the roles every tenant starts with. The owner
// role is the immutable system role; "staff" is the initial default.
func seedTemplates() []seedTemplate {
	return []seedTemplate{
		{
			Name:         "Owner",
			Slug:         "owner",
			IsSystemRole: true,
			Permissions:  permissions.Full(),
		},
		{
			Name: "Admin",
			Slug: SlugAdmin,
			Permissions: permissions.Map{
				permissions.ResourceBookings:  permissions.LevelFull,
				permissions.ResourceCalendar:  permissions.LevelFull,
				permissions.ResourceServices:  permissions.LevelFull,
				permissions.ResourceWebsite:   permissions.LevelFull,
				permissions.ResourceAnalytics: permissions.LevelFull,
				permissions.ResourceBilling:   permissions.LevelEdit,
				permissions.ResourceTeam:      permissions.LevelFull,
				permissions.ResourceSettings:  permissions.LevelFull,
			},
		},
		{
			Name: "Manager",
			Slug: SlugManager,
			Permissions: permissions.Map{
				permissions.ResourceBookings:  permissions.LevelFull,
				permissions.ResourceCalendar:  permissions.LevelFull,
				permissions.ResourceServices:  permissions.LevelEdit,
				permissions.ResourceAnalytics: permissions.LevelView,
				permissions.ResourceTeam:      permissions.LevelView,
			},
		},
		{
			Name:      "Staff",
			Slug:      SlugStaff,
			IsDefault: true,
			Permissions: permissions.Map{
				permissions.ResourceBookings: permissions.LevelEdit,
				permissions.ResourceCalendar: permissions.LevelEdit,
				permissions.ResourceServices: permissions.LevelView,
			},
		},
		{
			Name: "Accountant",
			Slug: SlugAccountant,
			Permissions: permissions.Map{
				permissions.ResourceBookings:  permissions.LevelView,
				permissions.ResourceAnalytics: permissions.LevelFull,
				permissions.ResourceBilling:   permissions.LevelFull,
			},
		},
	}
}
