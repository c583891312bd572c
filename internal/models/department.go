package models

// DefaultDepartment receives every complaint whose category has no dedicated
// department.
const DefaultDepartment = "General Administration"

// categoryDepartments is the static category to department routing table.
var categoryDepartments = map[string]string{
	"Water Supply":           "Water Works Department",
	"Drainage & Sewage":      "Sewerage Board",
	"Electricity":            "Electricity Board",
	"Street Lighting":        "Electrical Maintenance Division",
	"Roads & Infrastructure": "Public Works Department",
	"Sanitation & Waste":     "Sanitation Department",
	"Public Transport":       "Transport Authority",
	"Public Health":          "Health Department",
	"Parks & Recreation":     "Horticulture Department",
	"Encroachment":           "Town Planning Department",
	"Noise Pollution":        "Pollution Control Board",
	"Property Tax":           "Revenue Department",
	"Stray Animals":          "Veterinary Department",
}

// DepartmentForCategory resolves the handling department for a category.
// Unknown categories fall back to General Administration, so routing never
// fails.
func DepartmentForCategory(category string) string {
	if dept, ok := categoryDepartments[category]; ok {
		return dept
	}
	return DefaultDepartment
}

// IsKnownCategory reports whether the category has a dedicated department.
func IsKnownCategory(category string) bool {
	_, ok := categoryDepartments[category]
	return ok
}

// Categories returns the list of known complaint categories.
func Categories() []string {
	cats := make([]string, 0, len(categoryDepartments))
	for c := range categoryDepartments {
		cats = append(cats, c)
	}
	return cats
}
