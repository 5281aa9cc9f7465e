package dto

import "github.com/noah-isme/classroom-api/internal/models"

// ClassTimetableResponse lists a class timetable grouped by teaching day.
type ClassTimetableResponse struct {
	ClassID string                `json:"class_id"`
	Days    []models.TimetableDay `json:"days"`
}
