package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/classroom-api/internal/dto"
	"github.com/noah-isme/classroom-api/internal/middleware"
	"github.com/noah-isme/classroom-api/internal/models"
	"github.com/noah-isme/classroom-api/internal/service"
	appErrors "github.com/noah-isme/classroom-api/pkg/errors"
)

type testEnvelope struct {
	Data       json.RawMessage        `json:"data"`
	Error      *appErrors.Error       `json:"error"`
	Pagination *models.Pagination     `json:"pagination"`
	Meta       map[string]interface{} `json:"meta"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) testEnvelope {
	t.Helper()
	var env testEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func newTestContext(method, target, body string, claims *models.JWTClaims) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		c.Request.Header.Set("Content-Type", "application/json")
	}
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	return c, rec
}

var (
	adminCaller   = &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
	teacherCaller = &models.JWTClaims{UserID: "teacher-1", Role: models.RoleTeacher}
)

type fakeQuizService struct {
	scope       service.QuizScope
	classID     string
	filter      models.QuizFilter
	query       dto.QuizResultQuery
	createReq   service.CreateQuizRequest
	gradeReq    service.GradeResultRequest
	statusReq   service.UpdateQuizStatusRequest
	targetID    string
	format      service.ExportFormat
	err         error
	created     *dto.QuizCreatedResponse
	results     *dto.QuizResultsResponse
	sheet       *service.ResultSheet
	graded      *models.QuizResult
	quizzes     []models.Quiz
	pagination  *models.Pagination
	subjectOpts []models.SubjectOption
}

func (f *fakeQuizService) ClassOptions(_ context.Context, scope service.QuizScope) ([]models.Class, error) {
	f.scope = scope
	return []models.Class{{ID: "class-a", Name: "X-A"}}, f.err
}

func (f *fakeQuizService) SubjectOptions(_ context.Context, scope service.QuizScope, classID string) ([]models.SubjectOption, error) {
	f.scope, f.classID = scope, classID
	return f.subjectOpts, f.err
}

func (f *fakeQuizService) List(_ context.Context, scope service.QuizScope, filter models.QuizFilter) ([]models.Quiz, *models.Pagination, error) {
	f.scope, f.filter = scope, filter
	return f.quizzes, f.pagination, f.err
}

func (f *fakeQuizService) Create(_ context.Context, _ *models.JWTClaims, req service.CreateQuizRequest) (*dto.QuizCreatedResponse, error) {
	f.createReq = req
	return f.created, f.err
}

func (f *fakeQuizService) UpdateStatus(_ context.Context, _ *models.JWTClaims, quizID string, req service.UpdateQuizStatusRequest) (*models.Quiz, error) {
	f.targetID, f.statusReq = quizID, req
	if f.err != nil {
		return nil, f.err
	}
	return &models.Quiz{ID: quizID, Status: req.Status}, nil
}

func (f *fakeQuizService) SyncResults(_ context.Context, _ *models.JWTClaims, quizID string) (*dto.ResultSyncResponse, error) {
	f.targetID = quizID
	if f.err != nil {
		return nil, f.err
	}
	return &dto.ResultSyncResponse{QuizID: quizID, ResultsCreated: 2}, nil
}

func (f *fakeQuizService) Results(_ context.Context, scope service.QuizScope, query dto.QuizResultQuery) (*dto.QuizResultsResponse, error) {
	f.scope, f.query = scope, query
	return f.results, f.err
}

func (f *fakeQuizService) Grade(_ context.Context, _ *models.JWTClaims, resultID string, req service.GradeResultRequest) (*models.QuizResult, error) {
	f.targetID, f.gradeReq = resultID, req
	return f.graded, f.err
}

func (f *fakeQuizService) ExportResults(_ context.Context, scope service.QuizScope, query dto.QuizResultQuery, format service.ExportFormat) (*service.ResultSheet, error) {
	f.scope, f.query, f.format = scope, query, format
	return f.sheet, f.err
}

func TestQuizHandlerRequiresCaller(t *testing.T) {
	h := NewQuizHandler(&fakeQuizService{})
	handlers := map[string]gin.HandlerFunc{
		"classes":  h.ClassOptions,
		"subjects": h.SubjectOptions,
		"list":     h.List,
		"create":   h.Create,
		"status":   h.UpdateStatus,
		"sync":     h.SyncResults,
		"results":  h.Results,
		"export":   h.Export,
		"grade":    h.Grade,
	}
	for name, fn := range handlers {
		c, rec := newTestContext(http.MethodGet, "/", "", nil)
		fn(c)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, name)
	}
}

func TestQuizHandlerSubjectOptionsScopesTeacher(t *testing.T) {
	svc := &fakeQuizService{subjectOpts: []models.SubjectOption{{ID: "all", Name: "All Subjects"}, {ID: "math", Name: "Mathematics"}}}
	h := NewQuizHandler(svc)

	c, rec := newTestContext(http.MethodGet, "/classes/class-a/subjects", "", teacherCaller)
	c.Params = gin.Params{{Key: "id", Value: "class-a"}}
	h.SubjectOptions(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "teacher-1", svc.scope.TeacherID)
	assert.Equal(t, "class-a", svc.classID)
	var options []models.SubjectOption
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &options))
	assert.Equal(t, "All Subjects", options[0].Name)
}

func TestQuizHandlerListParsesFilter(t *testing.T) {
	svc := &fakeQuizService{quizzes: []models.Quiz{{ID: "q1"}}, pagination: &models.Pagination{Page: 2, PageSize: 5, TotalCount: 6}}
	h := NewQuizHandler(svc)

	c, rec := newTestContext(http.MethodGet, "/quizzes?class_id=class-a&status=active&type=exam&page=2&limit=5", "", adminCaller)
	h.List(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.QuizFilter{ClassID: "class-a", Status: models.QuizStatusActive, Type: models.QuizTypeExam, Page: 2, PageSize: 5}, svc.filter)
	assert.Empty(t, svc.scope.TeacherID)
	assert.Equal(t, 6, decodeEnvelope(t, rec).Pagination.TotalCount)
}

func TestQuizHandlerCreate(t *testing.T) {
	svc := &fakeQuizService{created: &dto.QuizCreatedResponse{Quiz: &models.Quiz{ID: "q1"}, ResultsCreated: 3}}
	h := NewQuizHandler(svc)

	body := `{"title":"Algebra","subject_id":"math","class_id":"class-a","scheduled_date":"2026-10-20","duration":45,"total_marks":50,"passing_marks":25}`
	c, rec := newTestContext(http.MethodPost, "/quizzes", body, teacherCaller)
	h.Create(c)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Algebra", svc.createReq.Title)
	assert.Equal(t, 50, svc.createReq.TotalMarks)
	var created dto.QuizCreatedResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &created))
	assert.Equal(t, 3, created.ResultsCreated)
}

func TestQuizHandlerCreateRejectsMalformedJSON(t *testing.T) {
	h := NewQuizHandler(&fakeQuizService{})
	c, rec := newTestContext(http.MethodPost, "/quizzes", `{"title":`, teacherCaller)
	h.Create(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, appErrors.ErrValidation.Code, decodeEnvelope(t, rec).Error.Code)
}

func TestQuizHandlerUpdateStatusMapsPrecondition(t *testing.T) {
	svc := &fakeQuizService{err: appErrors.Clone(appErrors.ErrPreconditionFailed, "cannot move quiz from completed to active")}
	h := NewQuizHandler(svc)

	c, rec := newTestContext(http.MethodPatch, "/quizzes/q1/status", `{"status":"active"}`, adminCaller)
	c.Params = gin.Params{{Key: "id", Value: "q1"}}
	h.UpdateStatus(c)

	assert.Equal(t, appErrors.ErrPreconditionFailed.Status, rec.Code)
	assert.Equal(t, "q1", svc.targetID)
	assert.Equal(t, models.QuizStatusActive, svc.statusReq.Status)
}

func TestQuizHandlerSyncResults(t *testing.T) {
	svc := &fakeQuizService{}
	h := NewQuizHandler(svc)

	c, rec := newTestContext(http.MethodPost, "/quizzes/q1/results/sync", "", adminCaller)
	c.Params = gin.Params{{Key: "id", Value: "q1"}}
	h.SyncResults(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var synced dto.ResultSyncResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &synced))
	assert.Equal(t, dto.ResultSyncResponse{QuizID: "q1", ResultsCreated: 2}, synced)
}

func TestQuizHandlerResultsBindsQuery(t *testing.T) {
	svc := &fakeQuizService{results: &dto.QuizResultsResponse{Results: []models.QuizResult{}, Stats: models.QuizResultStats{Count: 4, CheckedCount: 1}}}
	h := NewQuizHandler(svc)

	c, rec := newTestContext(http.MethodGet, "/quiz-results?class_id=class-a&subject_id=all&checked=unchecked", "", teacherCaller)
	h.Results(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, dto.QuizResultQuery{ClassID: "class-a", SubjectID: "all", Checked: "unchecked"}, svc.query)
	assert.Equal(t, "teacher-1", svc.scope.TeacherID)
	var body dto.QuizResultsResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &body))
	assert.Equal(t, 4, body.Stats.Count)
}

func TestQuizHandlerExportStreamsAttachment(t *testing.T) {
	svc := &fakeQuizService{sheet: &service.ResultSheet{Filename: "quiz-results.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.3")}}
	h := NewQuizHandler(svc)

	c, rec := newTestContext(http.MethodGet, "/quiz-results/export?format=PDF&checked=checked", "", adminCaller)
	h.Export(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, service.ExportFormatPDF, svc.format)
	assert.Equal(t, "checked", svc.query.Checked)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "quiz-results.pdf")
	assert.Equal(t, "%PDF-1.3", rec.Body.String())
}

func TestQuizHandlerExportDefaultsToCSV(t *testing.T) {
	svc := &fakeQuizService{err: appErrors.Clone(appErrors.ErrNotEnabled, "result exports are disabled")}
	h := NewQuizHandler(svc)

	c, rec := newTestContext(http.MethodGet, "/quiz-results/export", "", adminCaller)
	h.Export(c)

	assert.Equal(t, service.ExportFormatCSV, svc.format)
	assert.Equal(t, appErrors.ErrNotEnabled.Status, rec.Code)
}

func TestQuizHandlerGrade(t *testing.T) {
	marks := 42.0
	svc := &fakeQuizService{graded: &models.QuizResult{ID: "r1", MarksObtained: &marks, IsChecked: true}}
	h := NewQuizHandler(svc)

	c, rec := newTestContext(http.MethodPatch, "/quiz-results/r1/grade", `{"marks_obtained":42,"remarks":"good"}`, teacherCaller)
	c.Params = gin.Params{{Key: "id", Value: "r1"}}
	h.Grade(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "r1", svc.targetID)
	require.NotNil(t, svc.gradeReq.MarksObtained)
	assert.Equal(t, 42.0, *svc.gradeReq.MarksObtained)
	assert.False(t, svc.gradeReq.IsAbsent)
}

func TestQuizHandlerGradePropagatesValidationDetails(t *testing.T) {
	details := map[string]string{"marks_obtained": "must be at least 0"}
	svc := &fakeQuizService{err: appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "invalid grading payload"), details)}
	h := NewQuizHandler(svc)

	c, rec := newTestContext(http.MethodPatch, "/quiz-results/r1/grade", `{"marks_obtained":-1}`, teacherCaller)
	c.Params = gin.Params{{Key: "id", Value: "r1"}}
	h.Grade(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, map[string]interface{}{"marks_obtained": "must be at least 0"}, env.Error.Details)
}
