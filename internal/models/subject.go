package models

import "time"

// AllSubjectsID is the sentinel id of the synthetic "All Subjects" selector entry.
const AllSubjectsID = "all"

// Subject represents an academic subject.
type Subject struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	ClassID   *string   `db:"class_id" json:"class_id,omitempty"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// SubjectOption is a selector entry exposed to the mobile client.
type SubjectOption struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
