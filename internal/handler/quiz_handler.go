package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/classroom-api/internal/dto"
	"github.com/noah-isme/classroom-api/internal/middleware"
	"github.com/noah-isme/classroom-api/internal/models"
	"github.com/noah-isme/classroom-api/internal/service"
	appErrors "github.com/noah-isme/classroom-api/pkg/errors"
	"github.com/noah-isme/classroom-api/pkg/response"
)

type quizService interface {
	ClassOptions(ctx context.Context, scope service.QuizScope) ([]models.Class, error)
	SubjectOptions(ctx context.Context, scope service.QuizScope, classID string) ([]models.SubjectOption, error)
	List(ctx context.Context, scope service.QuizScope, filter models.QuizFilter) ([]models.Quiz, *models.Pagination, error)
	Create(ctx context.Context, actor *models.JWTClaims, req service.CreateQuizRequest) (*dto.QuizCreatedResponse, error)
	UpdateStatus(ctx context.Context, actor *models.JWTClaims, quizID string, req service.UpdateQuizStatusRequest) (*models.Quiz, error)
	SyncResults(ctx context.Context, actor *models.JWTClaims, quizID string) (*dto.ResultSyncResponse, error)
	Results(ctx context.Context, scope service.QuizScope, query dto.QuizResultQuery) (*dto.QuizResultsResponse, error)
	Grade(ctx context.Context, actor *models.JWTClaims, resultID string, req service.GradeResultRequest) (*models.QuizResult, error)
	ExportResults(ctx context.Context, scope service.QuizScope, query dto.QuizResultQuery, format service.ExportFormat) (*service.ResultSheet, error)
}

// QuizHandler exposes quizzes and their results over HTTP.
type QuizHandler struct {
	service quizService
}

// NewQuizHandler constructs the handler.
func NewQuizHandler(service quizService) *QuizHandler {
	return &QuizHandler{service: service}
}

// ClassOptions godoc
// @Summary Class selector
// @Description Lists the classes visible to the caller
// @Tags Quizzes
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /classes [get]
func (h *QuizHandler) ClassOptions(c *gin.Context) {
	claims, ok := requireCaller(c)
	if !ok {
		return
	}
	classes, err := h.service.ClassOptions(c.Request.Context(), service.ScopeFor(claims))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, classes, nil)
}

// SubjectOptions godoc
// @Summary Subject selector for a class
// @Description Lists the subjects actively taught in the class, headed by an "All Subjects" entry
// @Tags Quizzes
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /classes/{id}/subjects [get]
func (h *QuizHandler) SubjectOptions(c *gin.Context) {
	claims, ok := requireCaller(c)
	if !ok {
		return
	}
	options, err := h.service.SubjectOptions(c.Request.Context(), service.ScopeFor(claims), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, options, nil)
}

// List godoc
// @Summary List quizzes
// @Tags Quizzes
// @Produce json
// @Param class_id query string false "Class ID"
// @Param subject_id query string false "Subject ID"
// @Param status query string false "Status"
// @Param type query string false "Type"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /quizzes [get]
func (h *QuizHandler) List(c *gin.Context) {
	claims, ok := requireCaller(c)
	if !ok {
		return
	}
	filter := models.QuizFilter{
		ClassID:   strings.TrimSpace(c.Query("class_id")),
		SubjectID: strings.TrimSpace(c.Query("subject_id")),
		Status:    models.QuizStatus(strings.TrimSpace(c.Query("status"))),
		Type:      models.QuizType(strings.TrimSpace(c.Query("type"))),
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	quizzes, pagination, err := h.service.List(c.Request.Context(), service.ScopeFor(claims), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, quizzes, pagination)
}

// Create godoc
// @Summary Create quiz
// @Description Creates a quiz and one pending result per active student of the class
// @Tags Quizzes
// @Accept json
// @Produce json
// @Param payload body service.CreateQuizRequest true "Quiz payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /quizzes [post]
func (h *QuizHandler) Create(c *gin.Context) {
	claims, ok := requireCaller(c)
	if !ok {
		return
	}
	var req service.CreateQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	created, err := h.service.Create(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}

// UpdateStatus godoc
// @Summary Change quiz status
// @Tags Quizzes
// @Accept json
// @Produce json
// @Param id path string true "Quiz ID"
// @Param payload body service.UpdateQuizStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /quizzes/{id}/status [patch]
func (h *QuizHandler) UpdateStatus(c *gin.Context) {
	claims, ok := requireCaller(c)
	if !ok {
		return
	}
	var req service.UpdateQuizStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	quiz, err := h.service.UpdateStatus(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, quiz, nil)
}

// SyncResults godoc
// @Summary Create missing result rows
// @Description Adds pending results for students who joined the class after the quiz was created
// @Tags Quizzes
// @Produce json
// @Param id path string true "Quiz ID"
// @Success 200 {object} response.Envelope
// @Router /quizzes/{id}/results/sync [post]
func (h *QuizHandler) SyncResults(c *gin.Context) {
	claims, ok := requireCaller(c)
	if !ok {
		return
	}
	synced, err := h.service.SyncResults(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, synced, nil)
}

// Results godoc
// @Summary List quiz results
// @Tags Quiz Results
// @Produce json
// @Param class_id query string false "Class ID or all"
// @Param subject_id query string false "Subject ID or all"
// @Param checked query string false "all, checked or unchecked"
// @Success 200 {object} response.Envelope
// @Router /quiz-results [get]
func (h *QuizHandler) Results(c *gin.Context) {
	claims, ok := requireCaller(c)
	if !ok {
		return
	}
	var query dto.QuizResultQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	results, err := h.service.Results(c.Request.Context(), service.ScopeFor(claims), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, results, nil, middleware.ExtractMeta(c))
}

// Export godoc
// @Summary Download quiz results
// @Tags Quiz Results
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf"
// @Param class_id query string false "Class ID or all"
// @Param subject_id query string false "Subject ID or all"
// @Param checked query string false "all, checked or unchecked"
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Router /quiz-results/export [get]
func (h *QuizHandler) Export(c *gin.Context) {
	claims, ok := requireCaller(c)
	if !ok {
		return
	}
	var query dto.QuizResultQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	format := service.ExportFormat(strings.ToLower(c.DefaultQuery("format", string(service.ExportFormatCSV))))
	sheet, err := h.service.ExportResults(c.Request.Context(), service.ScopeFor(claims), query, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, sheet.Filename, sheet.ContentType, sheet.Data)
}

// Grade godoc
// @Summary Grade a quiz result
// @Description Records marks or absence and completes the quiz if it is still open
// @Tags Quiz Results
// @Accept json
// @Produce json
// @Param id path string true "Result ID"
// @Param payload body service.GradeResultRequest true "Grading payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /quiz-results/{id}/grade [patch]
func (h *QuizHandler) Grade(c *gin.Context) {
	claims, ok := requireCaller(c)
	if !ok {
		return
	}
	var req service.GradeResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.service.Grade(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
