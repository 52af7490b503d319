// Package permissions is the fixed catalog of protected resources and
// permission levels. Pure data: the catalog never changes at runtime
// and carries no behavior beyond level comparison.
package permissions

// Level is a permission level for one resource. Levels are totally
// ordered: none < view < edit < full.
type Level string

const (
	LevelNone Level = "none"
	LevelView Level = "view"
	LevelEdit Level = "edit"
	LevelFull Level = "full"
)

var levelRank = map[Level]int{
	LevelNone: 0,
	LevelView: 1,
	LevelEdit: 2,
	LevelFull: 3,
}

// Valid reports whether l is a known level.
func (l Level) Valid() bool {
	_, ok := levelRank[l]
	return ok
}

// AtLeast reports whether l grants at least the required level.
// Unknown levels rank below none.
func (l Level) AtLeast(required Level) bool {
	return levelRank[l] >= levelRank[required]
}

// Resource is a protected resource key.
type Resource string

const (
	ResourceBookings  Resource = "bookings"
	ResourceCalendar  Resource = "calendar"
	ResourceServices  Resource = "services"
	ResourceWebsite   Resource = "website"
	ResourceAnalytics Resource = "analytics"
	ResourceBilling   Resource = "billing"
	ResourceTeam      Resource = "team"
	ResourceSettings  Resource = "settings"
)

// Catalog lists every protected resource.
var Catalog = []Resource{
	ResourceBookings,
	ResourceCalendar,
	ResourceServices,
	ResourceWebsite,
	ResourceAnalytics,
	ResourceBilling,
	ResourceTeam,
	ResourceSettings,
}

var catalogSet = func() map[Resource]bool {
	set := make(map[Resource]bool, len(Catalog))
	for _, r := range Catalog {
		set[r] = true
	}
	return set
}()

// ValidResource reports whether r is in the catalog.
func ValidResource(r Resource) bool {
	return catalogSet[r]
}

// Map is a role's resource-to-level assignment. Absent keys mean none.
type Map map[Resource]Level

// Grants reports whether the map grants at least the required level
// for a resource. A missing key counts as none.
func (m Map) Grants(resource Resource, required Level) bool {
	level, ok := m[resource]
	if !ok {
		level = LevelNone
	}
	return level.AtLeast(required)
}

// Validate rejects unknown resource keys and unknown levels. Called at
// the role store boundary so bad maps never reach business logic.
func (m Map) Validate() error {
	for resource, level := range m {
		if !ValidResource(resource) {
			return &UnknownResourceError{Resource: resource}
		}
		if !level.Valid() {
			return &UnknownLevelError{Level: level}
		}
	}
	return nil
}

// Full returns a map granting full access to every resource. Used to
// synthesize the owner role.
func Full() Map {
	m := make(Map, len(Catalog))
	for _, r := range Catalog {
		m[r] = LevelFull
	}
	return m
}

// UnknownResourceError is returned for resource keys outside the catalog.
type UnknownResourceError struct {
	Resource Resource
}

func (e *UnknownResourceError) Error() string {
	return "unknown resource key: " + string(e.Resource)
}

// UnknownLevelError is returned for levels outside the ordered set.
type UnknownLevelError struct {
	Level Level
}

func (e *UnknownLevelError) Error() string {
	return "unknown permission level: " + string(e.Level)
}
