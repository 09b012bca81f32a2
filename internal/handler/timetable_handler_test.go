package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable/internal/dto"
	"github.com/noah-isme/sma-timetable/internal/models"
	appErrors "github.com/noah-isme/sma-timetable/pkg/errors"
)

type timetableServiceMock struct {
	generateReq dto.GenerateTimetableRequest
	generateRes *dto.GenerateTimetableResponse
	listQuery   dto.EntryQuery
	upsertReq   dto.UpsertEntryRequest
	deletedID   string
	err         error
}

func (m *timetableServiceMock) SlotGrid() []models.SlotDefinition {
	return models.DefaultSlotGrid().Slots()
}

func (m *timetableServiceMock) Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.GenerateTimetableResponse, error) {
	m.generateReq = req
	if m.err != nil {
		return nil, m.err
	}
	if m.generateRes != nil {
		return m.generateRes, nil
	}
	return &dto.GenerateTimetableResponse{BatchID: "batch-1"}, nil
}

func (m *timetableServiceMock) ListEntries(ctx context.Context, query dto.EntryQuery) ([]models.TimetableEntry, error) {
	m.listQuery = query
	return []models.TimetableEntry{}, m.err
}

func (m *timetableServiceMock) Confirm(ctx context.Context) (*dto.ConfirmTimetableResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &dto.ConfirmTimetableResponse{BatchID: "batch-1", Promoted: 2}, nil
}

func (m *timetableServiceMock) Cancel(ctx context.Context) (*dto.CancelTimetableResponse, error) {
	return &dto.CancelTimetableResponse{Discarded: 0}, m.err
}

func (m *timetableServiceMock) UpsertEntry(ctx context.Context, req dto.UpsertEntryRequest) (*models.TimetableEntry, error) {
	m.upsertReq = req
	if m.err != nil {
		return nil, m.err
	}
	id := req.ID
	if id == "" {
		id = "new-id"
	}
	return &models.TimetableEntry{ID: id, CourseID: req.CourseID}, nil
}

func (m *timetableServiceMock) DeleteEntry(ctx context.Context, id string) error {
	m.deletedID = id
	return m.err
}

func (m *timetableServiceMock) Rebuild(ctx context.Context) (*dto.IndexReport, error) {
	return &dto.IndexReport{Rebuilt: true}, m.err
}

func (m *timetableServiceMock) VerifyIndex(ctx context.Context) (*dto.IndexReport, error) {
	return &dto.IndexReport{}, m.err
}

func newTimetableRouter(svc *timetableServiceMock) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := &TimetableHandler{service: svc}
	r := gin.New()
	r.GET("/timetable/slots", h.Slots)
	r.POST("/timetable/generate", h.Generate)
	r.GET("/timetable/entries", h.ListEntries)
	r.POST("/timetable/confirm", h.Confirm)
	r.POST("/timetable/cancel", h.Cancel)
	r.POST("/timetable/entries", h.CreateEntry)
	r.PUT("/timetable/entries/:id", h.UpdateEntry)
	r.DELETE("/timetable/entries/:id", h.DeleteEntry)
	r.POST("/timetable/index/rebuild", h.RebuildIndex)
	return r
}

func serve(r http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

const storedEntryID = "6f1c2a9e-3b7d-4e8a-9c51-0d2f4b6a8e10"

func entryPayload() []byte {
	return []byte(`{"semester_id":"sem-1","course_id":"c-1","teacher_id":"t-1","classroom_id":"r-1","day":"MONDAY","start_time":"09:00","end_time":"12:00"}`)
}

func TestTimetableHandlerSlots(t *testing.T) {
	w := serve(newTimetableRouter(&timetableServiceMock{}), http.MethodGet, "/timetable/slots", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data []models.SlotDefinition `json:"data"`
		Meta map[string]interface{}  `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Data, 10)
	assert.EqualValues(t, 10, body.Meta["total"])
}

func TestTimetableHandlerGenerate(t *testing.T) {
	svc := &timetableServiceMock{}
	w := serve(newTimetableRouter(svc), http.MethodPost, "/timetable/generate", []byte(`{"semesterIds":["sem-1"]}`))
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, []string{"sem-1"}, svc.generateReq.SemesterIDs)
}

func TestTimetableHandlerGenerateEmptyBody(t *testing.T) {
	svc := &timetableServiceMock{generateRes: &dto.GenerateTimetableResponse{}}
	w := serve(newTimetableRouter(svc), http.MethodPost, "/timetable/generate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, svc.generateReq.SemesterIDs)
}

func TestTimetableHandlerGenerateMalformed(t *testing.T) {
	w := serve(newTimetableRouter(&timetableServiceMock{}), http.MethodPost, "/timetable/generate", []byte(`{"semesterIds":`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTimetableHandlerGeneratePendingDrafts(t *testing.T) {
	svc := &timetableServiceMock{err: appErrors.Clone(appErrors.ErrPreconditionFailed, "drafts pending")}
	w := serve(newTimetableRouter(svc), http.MethodPost, "/timetable/generate", nil)
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)
}

func TestTimetableHandlerListEntriesBindsQuery(t *testing.T) {
	svc := &timetableServiceMock{}
	w := serve(newTimetableRouter(svc), http.MethodGet, "/timetable/entries?status=DRAFT&semesterId=sem-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DRAFT", svc.listQuery.Status)
	assert.Equal(t, "sem-1", svc.listQuery.SemesterID)
	assert.Contains(t, w.Body.String(), `"data":[]`)
}

func TestTimetableHandlerConfirmConflictCarriesDetails(t *testing.T) {
	confErr := &models.ConfirmationConflictError{Drafts: []models.DraftConflict{{
		EntryID:   "d-1",
		Conflicts: []models.Conflict{{Dimension: models.DimensionTeacher, BlockingEntryID: "e-1", Day: models.Monday, StartTime: "09:00"}},
	}}}
	svc := &timetableServiceMock{
		err: appErrors.Wrap(confErr, appErrors.ErrConfirmationConflict.Code, appErrors.ErrConfirmationConflict.Status, confErr.Error()).WithDetails(confErr),
	}
	w := serve(newTimetableRouter(svc), http.MethodPost, "/timetable/confirm", nil)
	require.Equal(t, http.StatusConflict, w.Code)

	var body struct {
		Error struct {
			Code    string `json:"code"`
			Details struct {
				Drafts []models.DraftConflict `json:"drafts"`
			} `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "CONFIRMATION_CONFLICT", body.Error.Code)
	require.Len(t, body.Error.Details.Drafts, 1)
	assert.Equal(t, models.DimensionTeacher, body.Error.Details.Drafts[0].Conflicts[0].Dimension)
}

func TestTimetableHandlerCreateIgnoresBodyID(t *testing.T) {
	svc := &timetableServiceMock{}
	payload := []byte(`{"id":"spoofed","semester_id":"sem-1","course_id":"c-1","teacher_id":"t-1","classroom_id":"r-1","day":"MONDAY","start_time":"09:00","end_time":"12:00"}`)
	w := serve(newTimetableRouter(svc), http.MethodPost, "/timetable/entries", payload)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Empty(t, svc.upsertReq.ID)
}

func TestTimetableHandlerUpdateUsesPathID(t *testing.T) {
	svc := &timetableServiceMock{}
	w := serve(newTimetableRouter(svc), http.MethodPut, "/timetable/entries/"+storedEntryID, entryPayload())
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, storedEntryID, svc.upsertReq.ID)
}

func TestTimetableHandlerErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"conflict", appErrors.Clone(appErrors.ErrScheduleConflict, "slot conflict: classroom held by e-1"), http.StatusConflict},
		{"validation", appErrors.Clone(appErrors.ErrValidation, "day must be one of MONDAY..FRIDAY"), http.StatusBadRequest},
		{"not found", appErrors.Clone(appErrors.ErrNotFound, "timetable entry not found"), http.StatusNotFound},
		{"degraded", appErrors.ErrIndexRebuildRequired, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &timetableServiceMock{err: tc.err}
			w := serve(newTimetableRouter(svc), http.MethodPut, "/timetable/entries/"+storedEntryID, entryPayload())
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestTimetableHandlerDelete(t *testing.T) {
	svc := &timetableServiceMock{}
	w := serve(newTimetableRouter(svc), http.MethodDelete, "/timetable/entries/"+storedEntryID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, storedEntryID, svc.deletedID)
}

func TestTimetableHandlerMalformedEntryIDIsNotFound(t *testing.T) {
	for _, method := range []string{http.MethodPut, http.MethodDelete} {
		t.Run(method, func(t *testing.T) {
			svc := &timetableServiceMock{}
			w := serve(newTimetableRouter(svc), method, "/timetable/entries/abc", entryPayload())
			require.Equal(t, http.StatusNotFound, w.Code)
			assert.Contains(t, w.Body.String(), `"code":"NOT_FOUND"`)
			assert.Empty(t, svc.upsertReq.ID)
			assert.Empty(t, svc.deletedID)
		})
	}
}

func TestTimetableHandlerRebuild(t *testing.T) {
	w := serve(newTimetableRouter(&timetableServiceMock{}), http.MethodPost, "/timetable/index/rebuild", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"rebuilt":true`)
}

type readyStub bool

func (p readyStub) Ready() bool { return bool(p) }

func TestMetricsHandlerReady(t *testing.T) {
	gin.SetMode(gin.TestMode)
	for _, tc := range []struct {
		ready bool
		want  int
	}{{true, http.StatusOK}, {false, http.StatusServiceUnavailable}} {
		h := NewMetricsHandler(nil, readyStub(tc.ready))
		r := gin.New()
		r.GET("/ready", h.Ready)
		w := serve(r, http.MethodGet, "/ready", nil)
		assert.Equal(t, tc.want, w.Code)
	}
}
