package models

import "time"

// Student represents a learner registered in a class.
type Student struct {
	ID         string    `db:"id" json:"id"`
	FullName   string    `db:"full_name" json:"full_name"`
	RollNumber string    `db:"roll_number" json:"roll_number"`
	ClassID    string    `db:"class_id" json:"class_id"`
	Active     bool      `db:"active" json:"active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}
