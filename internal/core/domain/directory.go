package domain

import "github.com/google/uuid"

// Assignee is one roster entry of a department.
type Assignee struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Department string    `json:"department"`
	Available  bool      `json:"available"`
}

// FindAssignee looks up a user in a roster.
func FindAssignee(roster []Assignee, id uuid.UUID) (Assignee, bool) {
	for _, a := range roster {
		if a.ID == id {
			return a, true
		}
	}
	return Assignee{}, false
}
