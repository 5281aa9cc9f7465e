package service

import (
	"math"
	"strings"

	"github.com/noah-isme/classroom-api/internal/models"
)

// QuizSnapshot holds the collections the result aggregations run over. Assignments carries the
// class-subject pairs visible to the caller: class_subjects rows for administrators or the
// caller's own enrollments for teachers.
type QuizSnapshot struct {
	Subjects    []models.Subject      `json:"subjects"`
	Assignments []models.ClassSubject `json:"assignments"`
	Quizzes     []models.Quiz         `json:"quizzes"`
	Results     []models.QuizResult   `json:"results"`
}

// QuizByID indexes the snapshot quizzes.
func (s QuizSnapshot) QuizByID() map[string]models.Quiz {
	index := make(map[string]models.Quiz, len(s.Quizzes))
	for _, quiz := range s.Quizzes {
		index[quiz.ID] = quiz
	}
	return index
}

func isAllFilter(value string) bool {
	return value == "" || strings.EqualFold(value, models.AllSubjectsID)
}

// SubjectsForClass returns the subjects available for classID. For the "all" sentinel a subject
// qualifies when at least one quiz exists for it; otherwise it needs an active assignment in the class.
func SubjectsForClass(snapshot QuizSnapshot, classID string) []models.Subject {
	eligible := make(map[string]struct{})
	if isAllFilter(classID) {
		for _, quiz := range snapshot.Quizzes {
			eligible[quiz.SubjectID] = struct{}{}
		}
	} else {
		for _, assignment := range snapshot.Assignments {
			if assignment.IsActive && assignment.ClassID == classID {
				eligible[assignment.SubjectID] = struct{}{}
			}
		}
	}

	subjects := make([]models.Subject, 0, len(eligible))
	for _, subject := range snapshot.Subjects {
		if _, ok := eligible[subject.ID]; ok {
			subjects = append(subjects, subject)
		}
	}
	return subjects
}

// SubjectOptions converts subjects into selector entries headed by "All Subjects".
func SubjectOptions(subjects []models.Subject) []models.SubjectOption {
	options := make([]models.SubjectOption, 0, len(subjects)+1)
	options = append(options, models.SubjectOption{ID: models.AllSubjectsID, Name: "All Subjects"})
	for _, subject := range subjects {
		options = append(options, models.SubjectOption{ID: subject.ID, Name: subject.Name})
	}
	return options
}

// FilterResults applies the class, subject and checked filters conjunctively. The subject filter
// only considers quizzes that already passed the class filter, so equal subject ids in other
// classes never leak in.
func FilterResults(snapshot QuizSnapshot, filter models.QuizResultFilter) []models.QuizResult {
	classAll := isAllFilter(filter.ClassID)
	subjectAll := isAllFilter(filter.SubjectID)

	var allowed map[string]struct{}
	if !classAll || !subjectAll {
		allowed = make(map[string]struct{})
		for _, quiz := range snapshot.Quizzes {
			if !classAll && quiz.ClassID != filter.ClassID {
				continue
			}
			if !subjectAll && quiz.SubjectID != filter.SubjectID {
				continue
			}
			allowed[quiz.ID] = struct{}{}
		}
	}

	results := make([]models.QuizResult, 0, len(snapshot.Results))
	for _, result := range snapshot.Results {
		if allowed != nil {
			if _, ok := allowed[result.QuizID]; !ok {
				continue
			}
		}
		switch filter.Checked {
		case models.CheckedOnly:
			if !result.IsChecked {
				continue
			}
		case models.CheckedUnchecked:
			if result.IsChecked {
				continue
			}
		}
		results = append(results, result)
	}
	return results
}

// GradeFor buckets a percentage into a letter grade.
func GradeFor(percentage float64) string {
	switch {
	case percentage >= 90:
		return "A+"
	case percentage >= 80:
		return "A"
	case percentage >= 70:
		return "B+"
	case percentage >= 60:
		return "B"
	case percentage >= 50:
		return "C+"
	case percentage >= 40:
		return "C"
	default:
		return "F"
	}
}

// ResultPercentage derives the percentage from marks and total marks. It is nil when the result
// carries no marks or no total.
func ResultPercentage(result models.QuizResult) *float64 {
	if result.MarksObtained == nil || result.TotalMarks <= 0 {
		return nil
	}
	pct := *result.MarksObtained / float64(result.TotalMarks) * 100
	return &pct
}

// DecorateResults fills the read-time derived fields. Results whose quiz is unknown keep a nil Passed.
func DecorateResults(results []models.QuizResult, quizzes map[string]models.Quiz) []models.QuizResult {
	decorated := make([]models.QuizResult, len(results))
	for i, result := range results {
		result.Percentage = nil
		result.Grade = ""
		result.Passed = nil
		if pct := ResultPercentage(result); pct != nil && !result.Absent() {
			rounded := math.Round(*pct*100) / 100
			result.Percentage = &rounded
			result.Grade = GradeFor(rounded)
			if quiz, ok := quizzes[result.QuizID]; ok {
				passed := *result.MarksObtained >= float64(quiz.PassingMarks)
				result.Passed = &passed
			}
		}
		decorated[i] = result
	}
	return decorated
}

// ComputeStats summarises results. Absent results count only as absent, so checked, absent and
// pending always add up to the result count. Marks are summed over checked results.
func ComputeStats(results []models.QuizResult) models.QuizResultStats {
	stats := models.QuizResultStats{Count: len(results)}
	for _, result := range results {
		switch {
		case result.Absent():
			stats.AbsentCount++
		case result.IsChecked:
			stats.CheckedCount++
			if result.MarksObtained != nil {
				stats.ObtainedMarks += *result.MarksObtained
			}
			stats.PossibleMarks += float64(result.TotalMarks)
		}
	}
	stats.PendingCount = stats.Count - stats.CheckedCount - stats.AbsentCount
	if stats.PossibleMarks > 0 {
		stats.AveragePercentage = stats.ObtainedMarks / stats.PossibleMarks * 100
	}
	return stats
}
