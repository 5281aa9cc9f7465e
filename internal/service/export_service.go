package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/classroom-api/internal/models"
	appErrors "github.com/noah-isme/classroom-api/pkg/errors"
	"github.com/noah-isme/classroom-api/pkg/export"
)

// ExportFormat selects the rendering of a result sheet.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

var resultSheetHeaders = []string{"Quiz", "Student", "Roll No", "Status", "Marks", "Total", "Percentage", "Grade", "Passed", "Remarks"}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// ResultSheet is a rendered export ready to be streamed.
type ResultSheet struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ResultSheetExporter renders decorated quiz results as CSV or PDF.
type ResultSheetExporter struct {
	csv csvRenderer
	pdf pdfRenderer
	now func() time.Time
}

// NewResultSheetExporter constructs an exporter. Nil renderers fall back to the pkg/export ones.
func NewResultSheetExporter(csv csvRenderer, pdf pdfRenderer) *ResultSheetExporter {
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ResultSheetExporter{csv: csv, pdf: pdf, now: time.Now}
}

// Render builds the sheet for results, which must already carry their derived fields.
func (e *ResultSheetExporter) Render(results []models.QuizResult, quizzes map[string]models.Quiz, stats models.QuizResultStats, format ExportFormat) (*ResultSheet, error) {
	dataset := buildResultDataset(results, quizzes, stats)
	stamp := e.now().UTC().Format("20060102-150405")

	switch format {
	case ExportFormatCSV:
		payload, err := e.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render result sheet")
		}
		return &ResultSheet{Filename: fmt.Sprintf("quiz-results-%s.csv", stamp), ContentType: "text/csv", Data: payload}, nil
	case ExportFormatPDF:
		payload, err := e.pdf.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render result sheet")
		}
		return &ResultSheet{Filename: fmt.Sprintf("quiz-results-%s.pdf", stamp), ContentType: "application/pdf", Data: payload}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
}

func buildResultDataset(results []models.QuizResult, quizzes map[string]models.Quiz, stats models.QuizResultStats) export.Dataset {
	rows := make([]map[string]string, 0, len(results))
	for _, result := range results {
		quizTitle := result.QuizID
		if quiz, ok := quizzes[result.QuizID]; ok {
			quizTitle = quiz.Title
		}
		status := "pending"
		switch {
		case result.Absent():
			status = "absent"
		case result.IsChecked:
			status = "checked"
		}
		row := map[string]string{
			"Quiz":    quizTitle,
			"Student": result.StudentName,
			"Roll No": result.RollNumber,
			"Status":  status,
			"Total":   strconv.Itoa(result.TotalMarks),
			"Grade":   result.Grade,
		}
		if result.MarksObtained != nil {
			row["Marks"] = strconv.FormatFloat(*result.MarksObtained, 'f', -1, 64)
		}
		if result.Percentage != nil {
			row["Percentage"] = strconv.FormatFloat(*result.Percentage, 'f', 2, 64)
		}
		if result.Passed != nil {
			row["Passed"] = map[bool]string{true: "yes", false: "no"}[*result.Passed]
		}
		if result.Remarks != nil {
			row["Remarks"] = strings.TrimSpace(*result.Remarks)
		}
		rows = append(rows, row)
	}

	return export.Dataset{
		Title:   "Quiz Result Sheet",
		Headers: resultSheetHeaders,
		Rows:    rows,
		Notes: []string{
			fmt.Sprintf("Results: %d  Checked: %d  Absent: %d  Pending: %d", stats.Count, stats.CheckedCount, stats.AbsentCount, stats.PendingCount),
			fmt.Sprintf("Marks: %s / %s  Average: %.2f%%",
				strconv.FormatFloat(stats.ObtainedMarks, 'f', -1, 64),
				strconv.FormatFloat(stats.PossibleMarks, 'f', -1, 64),
				stats.AveragePercentage),
		},
	}
}
