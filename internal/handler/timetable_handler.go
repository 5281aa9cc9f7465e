package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/classroom-api/internal/dto"
	"github.com/noah-isme/classroom-api/internal/models"
	"github.com/noah-isme/classroom-api/internal/service"
	appErrors "github.com/noah-isme/classroom-api/pkg/errors"
	"github.com/noah-isme/classroom-api/pkg/response"
)

type timetableService interface {
	Validate(ctx context.Context, req service.ValidateTimetableRequest) (*models.TimetableValidation, error)
	Create(ctx context.Context, actor *models.JWTClaims, req service.TimetableEntryRequest) (*models.TimetableEntry, error)
	Update(ctx context.Context, actor *models.JWTClaims, id string, req service.TimetableEntryRequest) (*models.TimetableEntry, error)
	Delete(ctx context.Context, actor *models.JWTClaims, id string) error
	ListByClass(ctx context.Context, classID string) (*dto.ClassTimetableResponse, error)
	ListMine(ctx context.Context, actor *models.JWTClaims) ([]models.TimetableDay, error)
}

// TimetableHandler exposes class timetables over HTTP.
type TimetableHandler struct {
	service timetableService
}

// NewTimetableHandler constructs the handler.
func NewTimetableHandler(service timetableService) *TimetableHandler {
	return &TimetableHandler{service: service}
}

// Validate godoc
// @Summary Check a timetable entry
// @Description Returns the verdict for a candidate entry without storing it
// @Tags Timetable
// @Accept json
// @Produce json
// @Param payload body service.ValidateTimetableRequest true "Candidate entry"
// @Success 200 {object} response.Envelope
// @Router /timetable/validate [post]
func (h *TimetableHandler) Validate(c *gin.Context) {
	var req service.ValidateTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	verdict, err := h.service.Validate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, verdict, nil)
}

// ListByClass godoc
// @Summary Class timetable
// @Tags Timetable
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /timetable/classes/{id} [get]
func (h *TimetableHandler) ListByClass(c *gin.Context) {
	timetable, err := h.service.ListByClass(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, timetable, nil)
}

// ListMine godoc
// @Summary Caller's teaching timetable
// @Tags Timetable
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /timetable/me [get]
func (h *TimetableHandler) ListMine(c *gin.Context) {
	claims, ok := requireCaller(c)
	if !ok {
		return
	}
	days, err := h.service.ListMine(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, days, nil)
}

// Create godoc
// @Summary Add a timetable entry
// @Tags Timetable
// @Accept json
// @Produce json
// @Param payload body service.TimetableEntryRequest true "Entry"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /timetable [post]
func (h *TimetableHandler) Create(c *gin.Context) {
	claims, ok := requireCaller(c)
	if !ok {
		return
	}
	var req service.TimetableEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	entry, err := h.service.Create(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

// Update godoc
// @Summary Replace a timetable entry
// @Tags Timetable
// @Accept json
// @Produce json
// @Param id path string true "Entry ID"
// @Param payload body service.TimetableEntryRequest true "Entry"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /timetable/{id} [put]
func (h *TimetableHandler) Update(c *gin.Context) {
	claims, ok := requireCaller(c)
	if !ok {
		return
	}
	var req service.TimetableEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	entry, err := h.service.Update(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}

// Delete godoc
// @Summary Remove a timetable entry
// @Tags Timetable
// @Param id path string true "Entry ID"
// @Success 204
// @Router /timetable/{id} [delete]
func (h *TimetableHandler) Delete(c *gin.Context) {
	claims, ok := requireCaller(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), claims, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
