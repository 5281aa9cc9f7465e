package dto

import "github.com/noah-isme/classroom-api/internal/models"

// QuizResultQuery carries the result list filters. Empty or "all" values disable a filter.
type QuizResultQuery struct {
	ClassID   string `form:"class_id"`
	SubjectID string `form:"subject_id"`
	Checked   string `form:"checked" validate:"omitempty,oneof=all checked unchecked"`
}

// Filter converts the query into the aggregator filter.
func (q QuizResultQuery) Filter() models.QuizResultFilter {
	checked := models.CheckedFilter(q.Checked)
	if checked == "" {
		checked = models.CheckedAll
	}
	return models.QuizResultFilter{ClassID: q.ClassID, SubjectID: q.SubjectID, Checked: checked}
}

// QuizResultsResponse pairs the filtered results with their summary.
type QuizResultsResponse struct {
	Results []models.QuizResult    `json:"results"`
	Stats   models.QuizResultStats `json:"stats"`
}

// QuizCreatedResponse reports the stored quiz and the outcome of the result fan-out. FanoutPending
// is set when the fan-out failed and was handed to the retry queue.
type QuizCreatedResponse struct {
	Quiz           *models.Quiz `json:"quiz"`
	ResultsCreated int          `json:"results_created"`
	FanoutPending  bool         `json:"fanout_pending"`
}

// ResultSyncResponse reports how many missing result rows a sync created.
type ResultSyncResponse struct {
	QuizID         string `json:"quiz_id"`
	ResultsCreated int    `json:"results_created"`
}
