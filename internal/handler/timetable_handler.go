package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-timetable/internal/dto"
	"github.com/noah-isme/sma-timetable/internal/models"
	"github.com/noah-isme/sma-timetable/internal/service"
	appErrors "github.com/noah-isme/sma-timetable/pkg/errors"
	"github.com/noah-isme/sma-timetable/pkg/response"
)

type timetableService interface {
	SlotGrid() []models.SlotDefinition
	Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.GenerateTimetableResponse, error)
	ListEntries(ctx context.Context, query dto.EntryQuery) ([]models.TimetableEntry, error)
	Confirm(ctx context.Context) (*dto.ConfirmTimetableResponse, error)
	Cancel(ctx context.Context) (*dto.CancelTimetableResponse, error)
	UpsertEntry(ctx context.Context, req dto.UpsertEntryRequest) (*models.TimetableEntry, error)
	DeleteEntry(ctx context.Context, id string) error
	Rebuild(ctx context.Context) (*dto.IndexReport, error)
	VerifyIndex(ctx context.Context) (*dto.IndexReport, error)
}

// TimetableHandler exposes generation, confirmation and manual editing endpoints.
type TimetableHandler struct {
	service timetableService
}

// NewTimetableHandler constructs the handler.
func NewTimetableHandler(svc *service.TimetableService) *TimetableHandler {
	return &TimetableHandler{service: svc}
}

// Slots godoc
// @Summary List the weekly slot grid
// @Tags Timetable
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /timetable/slots [get]
func (h *TimetableHandler) Slots(c *gin.Context) {
	slots := h.service.SlotGrid()
	response.JSON(c, http.StatusOK, slots, map[string]interface{}{"total": len(slots)})
}

// Generate godoc
// @Summary Generate a draft timetable batch
// @Description Places one session per semester course. Semesters that already own entries are skipped.
// @Tags Timetable
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.GenerateTimetableRequest false "Semester scope; empty schedules every semester"
// @Success 201 {object} response.Envelope
// @Success 200 {object} response.Envelope "Nothing could be placed"
// @Failure 412 {object} response.Envelope "Drafts awaiting confirmation"
// @Router /timetable/generate [post]
func (h *TimetableHandler) Generate(c *gin.Context) {
	var req dto.GenerateTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generate payload"))
		return
	}
	result, err := h.service.Generate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	status := http.StatusCreated
	if result.BatchID == "" {
		status = http.StatusOK
	}
	response.JSON(c, status, result, nil)
}

// ListEntries godoc
// @Summary List timetable entries
// @Tags Timetable
// @Produce json
// @Security BearerAuth
// @Param status query string false "DRAFT or COMMITTED"
// @Param semesterId query string false "Semester ID"
// @Success 200 {object} response.Envelope
// @Router /timetable/entries [get]
func (h *TimetableHandler) ListEntries(c *gin.Context) {
	var query dto.EntryQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	entries, err := h.service.ListEntries(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, map[string]interface{}{"total": len(entries)})
}

// Confirm godoc
// @Summary Confirm the draft batch
// @Description Promotes every draft or none. Conflicts are listed per draft in error.details.
// @Tags Timetable
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /timetable/confirm [post]
func (h *TimetableHandler) Confirm(c *gin.Context) {
	result, err := h.service.Confirm(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Cancel godoc
// @Summary Discard the draft batch
// @Tags Timetable
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /timetable/cancel [post]
func (h *TimetableHandler) Cancel(c *gin.Context) {
	result, err := h.service.Cancel(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// CreateEntry godoc
// @Summary Create a timetable entry
// @Tags Timetable
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.UpsertEntryRequest true "Entry payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /timetable/entries [post]
func (h *TimetableHandler) CreateEntry(c *gin.Context) {
	var req dto.UpsertEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid entry payload"))
		return
	}
	req.ID = ""
	entry, err := h.service.UpsertEntry(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

// UpdateEntry godoc
// @Summary Replace a timetable entry
// @Tags Timetable
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Entry ID"
// @Param payload body dto.UpsertEntryRequest true "Entry payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /timetable/entries/{id} [put]
func (h *TimetableHandler) UpdateEntry(c *gin.Context) {
	if !models.ValidEntryID(c.Param("id")) {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "timetable entry not found"))
		return
	}
	var req dto.UpsertEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid entry payload"))
		return
	}
	req.ID = c.Param("id")
	entry, err := h.service.UpsertEntry(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}

// DeleteEntry godoc
// @Summary Delete a timetable entry
// @Tags Timetable
// @Security BearerAuth
// @Param id path string true "Entry ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /timetable/entries/{id} [delete]
func (h *TimetableHandler) DeleteEntry(c *gin.Context) {
	if !models.ValidEntryID(c.Param("id")) {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "timetable entry not found"))
		return
	}
	if err := h.service.DeleteEntry(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// RebuildIndex godoc
// @Summary Rebuild the conflict index from persisted entries
// @Tags Timetable
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /timetable/index/rebuild [post]
func (h *TimetableHandler) RebuildIndex(c *gin.Context) {
	report, err := h.service.Rebuild(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// VerifyIndex godoc
// @Summary Audit the conflict index against persisted entries
// @Tags Timetable
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /timetable/index/verify [post]
func (h *TimetableHandler) VerifyIndex(c *gin.Context) {
	report, err := h.service.VerifyIndex(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}
