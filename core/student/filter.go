package student

import "strings"

// Filter returns the students of list matching every non-empty field of filter.
// Search is a case-insensitive match on the name, roll number or email. list is never modified.
func Filter(list []Student, filter QueryFilter) []Student {
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	out := make([]Student, 0, len(list))
	for _, std := range list {
		if filter.ClassID != "" && std.ClassID != filter.ClassID {
			continue
		}
		if filter.IsActive != nil && std.IsActive != *filter.IsActive {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(std.Name), search) &&
			!strings.Contains(strings.ToLower(std.RollNumber), search) &&
			!strings.Contains(strings.ToLower(std.Email.String), search) {
			continue
		}
		out = append(out, std)
	}
	return out
}
