package service

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/noah-isme/classroom-api/internal/models"
)

const (
	msgFieldsRequired    = "All fields are required"
	msgEndBeforeStart    = "End time must be after start time"
	msgInvalidTimeFormat = "Invalid time format"
	msgInvalidDay        = "Invalid day"
)

var defaultTimetableDays = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

// TimetableValidator checks candidate entries against the entries of the same class and day.
// Rooms and teachers are not checked across classes.
type TimetableValidator struct {
	days  []string
	index map[string]int
}

// NewTimetableValidator builds a validator accepting the given days in display order.
func NewTimetableValidator(days []string) *TimetableValidator {
	if len(days) == 0 {
		days = defaultTimetableDays
	}
	index := make(map[string]int, len(days))
	for i, day := range days {
		index[strings.ToLower(day)] = i
	}
	return &TimetableValidator{days: days, index: index}
}

// CanonicalDay returns the configured spelling of day, or false when it is not a teaching day.
func (v *TimetableValidator) CanonicalDay(day string) (string, bool) {
	i, ok := v.index[strings.ToLower(strings.TrimSpace(day))]
	if !ok {
		return "", false
	}
	return v.days[i], true
}

// Normalize trims the entry and rewrites day and times into canonical form where possible.
func (v *TimetableValidator) Normalize(entry models.TimetableEntry) models.TimetableEntry {
	entry.Day = strings.TrimSpace(entry.Day)
	if day, ok := v.CanonicalDay(entry.Day); ok {
		entry.Day = day
	}
	entry.StartTime = normalizeClock(entry.StartTime)
	entry.EndTime = normalizeClock(entry.EndTime)
	entry.SubjectName = strings.TrimSpace(entry.SubjectName)
	entry.RoomNumber = strings.TrimSpace(entry.RoomNumber)
	entry.ClassID = strings.TrimSpace(entry.ClassID)
	return entry
}

// Validate decides whether candidate may be stored next to existing. The entry with excludeID,
// if any, is the one being edited and never conflicts with itself.
func (v *TimetableValidator) Validate(candidate models.TimetableEntry, existing []models.TimetableEntry, excludeID string) models.TimetableValidation {
	result := models.TimetableValidation{Conflicts: []models.TimetableConflict{}, Errors: []string{}}

	required := []string{candidate.Day, candidate.StartTime, candidate.EndTime, candidate.SubjectName, candidate.RoomNumber, candidate.ClassID}
	for _, field := range required {
		if strings.TrimSpace(field) == "" {
			result.Errors = append(result.Errors, msgFieldsRequired)
			return result
		}
	}

	day, ok := v.CanonicalDay(candidate.Day)
	if !ok {
		result.Errors = append(result.Errors, msgInvalidDay)
	}

	start, startErr := clockMinutes(candidate.StartTime)
	end, endErr := clockMinutes(candidate.EndTime)
	if startErr != nil || endErr != nil {
		result.Errors = append(result.Errors, msgInvalidTimeFormat)
		return result
	}
	if start >= end {
		result.Errors = append(result.Errors, msgEndBeforeStart)
		return result
	}
	if !ok {
		return result
	}

	for _, entry := range existing {
		if excludeID != "" && entry.ID == excludeID {
			continue
		}
		if entry.ClassID != candidate.ClassID {
			continue
		}
		if entryDay, known := v.CanonicalDay(entry.Day); !known || entryDay != day {
			continue
		}
		existingStart, err := clockMinutes(entry.StartTime)
		if err != nil {
			continue
		}
		existingEnd, err := clockMinutes(entry.EndTime)
		if err != nil {
			continue
		}
		if existingStart < end && existingEnd > start {
			result.Conflicts = append(result.Conflicts, models.TimetableConflict{
				EntryID:     entry.ID,
				SubjectName: entry.SubjectName,
				Day:         day,
				StartTime:   normalizeClock(entry.StartTime),
				EndTime:     normalizeClock(entry.EndTime),
				Message:     fmt.Sprintf("Conflicts with %s (%s-%s)", entry.SubjectName, normalizeClock(entry.StartTime), normalizeClock(entry.EndTime)),
			})
		}
	}

	result.IsValid = len(result.Errors) == 0 && len(result.Conflicts) == 0
	return result
}

// GroupByDay arranges entries per configured day, each day ordered by start time. Days without
// entries are included so the client can render an empty column.
func (v *TimetableValidator) GroupByDay(entries []models.TimetableEntry) []models.TimetableDay {
	grouped := make([]models.TimetableDay, len(v.days))
	for i, day := range v.days {
		grouped[i] = models.TimetableDay{Day: day, Entries: []models.TimetableEntry{}}
	}
	for _, entry := range entries {
		i, ok := v.index[strings.ToLower(strings.TrimSpace(entry.Day))]
		if !ok {
			continue
		}
		grouped[i].Entries = append(grouped[i].Entries, entry)
	}
	for i := range grouped {
		sort.SliceStable(grouped[i].Entries, func(a, b int) bool {
			return normalizeClock(grouped[i].Entries[a].StartTime) < normalizeClock(grouped[i].Entries[b].StartTime)
		})
	}
	return grouped
}

func parseClock(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid clock value %q", raw)
}

// clockMinutes drops seconds. Entries are stored at minute precision, so a span shorter than a
// minute would be stored with equal start and end.
func clockMinutes(raw string) (int, error) {
	t, err := parseClock(raw)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

func normalizeClock(raw string) string {
	t, err := parseClock(raw)
	if err != nil {
		return strings.TrimSpace(raw)
	}
	return t.Format("15:04")
}
