package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable/internal/dto"
	"github.com/noah-isme/sma-timetable/internal/models"
	appErrors "github.com/noah-isme/sma-timetable/pkg/errors"
	"github.com/noah-isme/sma-timetable/pkg/jobs"
)

// AuditJobType identifies index audit jobs on the background queue.
const AuditJobType = "timetable.index_audit"

const skipReasonScheduled = "ALREADY_SCHEDULED"

type semesterReader interface {
	List(ctx context.Context, ids []string) ([]models.Semester, error)
	ListCurricula(ctx context.Context, semesterIDs []string) ([]models.SemesterCourse, error)
	Exists(ctx context.Context, id string) (bool, error)
}

type teacherReader interface {
	ListWithCourses(ctx context.Context) ([]models.Teacher, error)
	Exists(ctx context.Context, id string) (bool, error)
}

type classroomReader interface {
	List(ctx context.Context) ([]models.Classroom, error)
	Exists(ctx context.Context, id string) (bool, error)
}

type courseReader interface {
	Exists(ctx context.Context, id string) (bool, error)
}

type auditQueue interface {
	TryEnqueue(job jobs.Job) error
}

// TimetableReferences groups the read-only collaborators owning reference data.
type TimetableReferences struct {
	Semesters  semesterReader
	Courses    courseReader
	Teachers   teacherReader
	Classrooms classroomReader
}

// TimetableService runs generation, confirmation and manual edits against one conflict index.
// mu is the single serialisation point: every check-then-register happens while holding it.
type TimetableService struct {
	mu       sync.RWMutex
	index    *ConflictIndex
	degraded bool

	grid      *models.SlotGrid
	engine    *AllocationEngine
	drafts    *DraftStore
	entries   timetableEntryRepository
	refs      TimetableReferences
	cache     *CacheService
	metrics   *MetricsService
	audits    auditQueue
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTimetableService wires the scheduler. The index starts empty and the service refuses
// mutations until Rebuild has loaded persisted entries.
func NewTimetableService(
	grid *models.SlotGrid,
	entries timetableEntryRepository,
	drafts *DraftStore,
	refs TimetableReferences,
	cache *CacheService,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
) *TimetableService {
	if grid == nil {
		grid = models.DefaultSlotGrid()
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimetableService{
		index:     NewConflictIndex(),
		degraded:  true,
		grid:      grid,
		engine:    NewAllocationEngine(grid),
		drafts:    drafts,
		entries:   entries,
		refs:      refs,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// SetAuditQueue attaches the queue used to schedule index audits.
func (s *TimetableService) SetAuditQueue(q auditQueue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits = q
}

// SlotGrid returns the weekly slot enumeration in allocation order.
func (s *TimetableService) SlotGrid() []models.SlotDefinition {
	return s.grid.Slots()
}

// Ready reports whether mutations are accepted.
func (s *TimetableService) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.degraded
}

// Generate allocates drafts for every semester in scope that has no entries yet.
func (s *TimetableService) Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.GenerateTimetableResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid generate payload")
	}
	input, err := s.loadAllocationInput(ctx, uniqueSorted(req.SemesterIDs))
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ctx = context.WithoutCancel(ctx)

	if err := s.ensureIndexReady(); err != nil {
		return nil, err
	}
	pending, err := s.drafts.Count(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count draft entries")
	}
	if pending > 0 {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "a draft batch is awaiting confirmation or cancellation")
	}

	semesterIDs := make([]string, 0, len(input.Semesters))
	for _, semester := range input.Semesters {
		semesterIDs = append(semesterIDs, semester.ID)
	}
	scheduled, err := s.entries.SemestersWithEntries(ctx, semesterIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to inspect existing entries")
	}
	skip := make(map[string]struct{}, len(scheduled))
	skipped := make([]models.SkippedSemester, 0, len(scheduled))
	for _, id := range scheduled {
		skip[id] = struct{}{}
		skipped = append(skipped, models.SkippedSemester{SemesterID: id, Reason: skipReasonScheduled})
	}
	inScope := input.Semesters[:0:0]
	scopeIDs := make([]string, 0, len(input.Semesters))
	for _, semester := range input.Semesters {
		if _, ok := skip[semester.ID]; ok {
			continue
		}
		inScope = append(inScope, semester)
		scopeIDs = append(scopeIDs, semester.ID)
	}
	input.Semesters = inScope

	batchID := uuid.NewString()
	result := s.engine.Allocate(s.index, input, batchID)
	resp := &dto.GenerateTimetableResponse{
		PlacedEntries:    dto.NewPlacedEntries(result.Placed),
		UnplacedCourses:  result.Unplaced,
		SkippedSemesters: skipped,
	}
	s.metrics.RecordGeneration(len(result.Placed), result.Unplaced)

	if len(result.Placed) == 0 {
		s.logger.Info("generation placed no entries",
			zap.Int("semesters", len(scopeIDs)),
			zap.Int("unplaced", len(result.Unplaced)),
			zap.Int("skipped", len(skipped)))
		return resp, nil
	}

	meta, err := json.Marshal(map[string]any{
		"placed":           len(result.Placed),
		"unplacedCourses":  result.Unplaced,
		"skippedSemesters": skipped,
		"slots":            s.grid.Len(),
	})
	if err != nil {
		s.unregisterAll(result.Placed)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode batch metadata")
	}
	batch := &models.TimetableBatch{
		ID:          batchID,
		Status:      models.BatchStatusOpen,
		SemesterIDs: pq.StringArray(scopeIDs),
		Meta:        types.JSONText(meta),
	}
	if err := s.drafts.Save(ctx, batch, result.Placed); err != nil {
		s.unregisterAll(result.Placed)
		if isUniqueViolation(err) {
			s.rebuildLocked(ctx, "unique_violation")
			return nil, appErrors.Wrap(err, appErrors.ErrScheduleConflict.Code, appErrors.ErrScheduleConflict.Status, "generated drafts collide with persisted entries")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist draft batch")
	}

	resp.BatchID = batchID
	s.invalidateEntries(ctx)
	s.metrics.RecordIndexState(s.index.Len(), s.degraded)
	s.logger.Info("draft batch generated",
		zap.String("batch_id", batchID),
		zap.Int("placed", len(result.Placed)),
		zap.Int("unplaced", len(result.Unplaced)),
		zap.Int("skipped", len(skipped)))
	return resp, nil
}

// ListEntries returns entries filtered by status and, optionally, semester.
func (s *TimetableService) ListEntries(ctx context.Context, query dto.EntryQuery) ([]models.TimetableEntry, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid entry filter")
	}
	filter := models.EntryFilter{SemesterID: query.SemesterID}
	if query.Status != "" {
		status, ok := models.ParseEntryStatus(query.Status)
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, "status must be DRAFT or COMMITTED")
		}
		filter.Status = status
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if cached, ok := s.cache.Entries(ctx, filter); ok {
		return cached, nil
	}

	entries, err := s.entries.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list timetable entries")
	}
	if entries == nil {
		entries = []models.TimetableEntry{}
	}
	s.cache.StoreEntries(ctx, filter, entries)
	return entries, nil
}

// Confirm revalidates every draft against the committed set and promotes them all, or none.
func (s *TimetableService) Confirm(ctx context.Context) (*dto.ConfirmTimetableResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx = context.WithoutCancel(ctx)

	if err := s.ensureIndexReady(); err != nil {
		return nil, err
	}
	batchID := s.openBatchID(ctx)

	drafts, err := s.drafts.Drafts(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load draft entries")
	}
	if len(drafts) == 0 {
		if batchID != "" {
			if err := s.drafts.CloseOpenBatch(ctx, models.BatchStatusConfirmed); err != nil {
				s.logger.Warn("failed to close empty batch", zap.String("batch_id", batchID), zap.Error(err))
			}
		}
		return &dto.ConfirmTimetableResponse{BatchID: batchID, Promoted: 0}, nil
	}

	committed, err := s.entries.List(ctx, models.EntryFilter{Status: models.EntryStatusCommitted})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load committed entries")
	}

	scratch := NewConflictIndex()
	if collisions := scratch.Rebuild(committed); len(collisions) > 0 {
		s.markDegraded("committed entries violate uniqueness", zap.Int("collisions", len(collisions)))
		return nil, appErrors.ErrIndexRebuildRequired
	}

	var conflicts []models.DraftConflict
	for _, draft := range drafts {
		if conflict := scratch.Check(draft, ""); conflict != nil {
			conflicts = append(conflicts, models.DraftConflict{EntryID: draft.ID, Conflicts: conflict.Conflicts})
			continue
		}
		scratch.Register(draft)
	}

	s.reconcile(committed, drafts, "confirm")

	if len(conflicts) > 0 {
		confErr := &models.ConfirmationConflictError{Drafts: conflicts}
		for _, dc := range conflicts {
			dims := make([]models.ConflictDimension, 0, len(dc.Conflicts))
			for _, c := range dc.Conflicts {
				dims = append(dims, c.Dimension)
			}
			s.metrics.RecordConflict("confirm", dims)
		}
		s.metrics.RecordConfirmation("conflict")
		s.logger.Warn("confirmation aborted",
			zap.String("batch_id", batchID),
			zap.Strings("conflicting_drafts", sortedDraftIDs(conflicts)))
		return nil, appErrors.Wrap(confErr, appErrors.ErrConfirmationConflict.Code, appErrors.ErrConfirmationConflict.Status, confErr.Error()).WithDetails(confErr)
	}

	if err := s.drafts.PromoteAll(ctx, len(drafts)); err != nil {
		s.metrics.RecordConfirmation("failed")
		s.scheduleAudit("confirm_failed")
		if errors.Is(err, ErrDraftCountMismatch) {
			return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "draft set changed during confirmation")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to promote draft entries")
	}

	for _, draft := range drafts {
		draft.Status = models.EntryStatusCommitted
		if conflict := s.index.Register(draft); conflict != nil {
			s.markDegraded("promoted draft missing from index", zap.String("entry_id", draft.ID))
		}
	}

	s.invalidateEntries(ctx)
	s.metrics.RecordConfirmation("confirmed")
	s.metrics.RecordIndexState(s.index.Len(), s.degraded)
	s.scheduleAudit("confirm")
	s.logger.Info("draft batch confirmed", zap.String("batch_id", batchID), zap.Int("promoted", len(drafts)))
	return &dto.ConfirmTimetableResponse{BatchID: batchID, Promoted: len(drafts)}, nil
}

// Cancel discards every draft and its index registrations. Calling it with no drafts is a no-op.
func (s *TimetableService) Cancel(ctx context.Context) (*dto.CancelTimetableResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx = context.WithoutCancel(ctx)

	if err := s.ensureIndexReady(); err != nil {
		return nil, err
	}
	batchID := s.openBatchID(ctx)

	drafts, err := s.drafts.Drafts(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load draft entries")
	}
	if len(drafts) == 0 {
		if batchID != "" {
			if err := s.drafts.CloseOpenBatch(ctx, models.BatchStatusCancelled); err != nil {
				s.logger.Warn("failed to close empty batch", zap.String("batch_id", batchID), zap.Error(err))
			}
		}
		return &dto.CancelTimetableResponse{BatchID: batchID, Discarded: 0}, nil
	}

	if err := s.drafts.DiscardAll(ctx, len(drafts)); err != nil {
		s.scheduleAudit("cancel_failed")
		if errors.Is(err, ErrDraftCountMismatch) {
			return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "draft set changed during cancellation")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to discard draft entries")
	}
	s.unregisterAll(drafts)

	s.invalidateEntries(ctx)
	s.metrics.RecordCancellation(len(drafts))
	s.metrics.RecordIndexState(s.index.Len(), s.degraded)
	s.scheduleAudit("cancel")
	s.logger.Info("draft batch cancelled", zap.String("batch_id", batchID), zap.Int("discarded", len(drafts)))
	return &dto.CancelTimetableResponse{BatchID: batchID, Discarded: len(drafts)}, nil
}

// UpsertEntry creates an entry when req.ID is empty and replaces the stored version otherwise.
// New entries default to COMMITTED; an edit never changes an entry's status.
func (s *TimetableService) UpsertEntry(ctx context.Context, req dto.UpsertEntryRequest) (*models.TimetableEntry, error) {
	entry, requestedStatus, err := s.entryFromRequest(req)
	if err != nil {
		return nil, err
	}
	if entry.ID != "" && !models.ValidEntryID(entry.ID) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable entry not found")
	}
	if err := s.checkReferences(ctx, entry); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ctx = context.WithoutCancel(ctx)

	if err := s.ensureIndexReady(); err != nil {
		return nil, err
	}

	updating := entry.ID != ""
	if updating {
		prior, err := s.entries.FindByID(ctx, entry.ID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable entry not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable entry")
		}
		if requestedStatus != "" && requestedStatus != prior.Status {
			return nil, appErrors.Clone(appErrors.ErrValidation, "status cannot change through an edit; confirm or cancel the batch instead")
		}
		entry.Status = prior.Status
		entry.BatchID = prior.BatchID
		entry.CreatedAt = prior.CreatedAt
	} else {
		entry.ID = uuid.NewString()
		entry.Status = models.EntryStatusCommitted
		if requestedStatus != "" {
			entry.Status = requestedStatus
		}
		if entry.Status == models.EntryStatusDraft {
			if batchID := s.openBatchID(ctx); batchID != "" {
				entry.BatchID = &batchID
			}
		}
	}

	if conflict := s.index.Check(entry, entry.ID); conflict != nil {
		s.metrics.RecordConflict("upsert", conflict.Dimensions())
		return nil, appErrors.Wrap(conflict, appErrors.ErrScheduleConflict.Code, appErrors.ErrScheduleConflict.Status, conflict.Error()).WithDetails(conflict)
	}

	if updating {
		err = s.entries.Update(ctx, nil, &entry)
	} else {
		err = s.entries.Create(ctx, nil, &entry)
	}
	if err != nil {
		switch {
		case isUniqueViolation(err):
			s.rebuildLocked(ctx, "unique_violation")
			return nil, appErrors.Wrap(err, appErrors.ErrScheduleConflict.Code, appErrors.ErrScheduleConflict.Status, "slot already booked in persisted timetable")
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable entry not found")
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save timetable entry")
		}
	}

	if conflict := s.index.Register(entry); conflict != nil {
		s.markDegraded("saved entry rejected by index", zap.String("entry_id", entry.ID))
	}
	s.invalidateEntries(ctx)
	s.metrics.RecordIndexState(s.index.Len(), s.degraded)
	s.logger.Info("timetable entry saved",
		zap.String("entry_id", entry.ID),
		zap.Bool("update", updating),
		zap.String("status", string(entry.Status)))
	return &entry, nil
}

// DeleteEntry removes an entry and releases its bookings.
func (s *TimetableService) DeleteEntry(ctx context.Context, id string) error {
	if id == "" {
		return appErrors.Clone(appErrors.ErrValidation, "id is required")
	}
	if !models.ValidEntryID(id) {
		return appErrors.Clone(appErrors.ErrNotFound, "timetable entry not found")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ctx = context.WithoutCancel(ctx)

	if err := s.ensureIndexReady(); err != nil {
		return err
	}
	if err := s.entries.Delete(ctx, nil, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "timetable entry not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete timetable entry")
	}
	s.index.Unregister(id)

	s.invalidateEntries(ctx)
	s.metrics.RecordIndexState(s.index.Len(), s.degraded)
	s.logger.Info("timetable entry deleted", zap.String("entry_id", id))
	return nil
}

// Rebuild replaces the index with one built from every persisted entry.
func (s *TimetableService) Rebuild(ctx context.Context) (*dto.IndexReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rebuildLocked(context.WithoutCancel(ctx), "manual")
}

// VerifyIndex compares the live index with the one persisted entries produce and replaces it
// on divergence.
func (s *TimetableService) VerifyIndex(ctx context.Context) (*dto.IndexReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx = context.WithoutCancel(ctx)

	persisted, err := s.entries.List(ctx, models.EntryFilter{})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load entries for audit")
	}
	expected := NewConflictIndex()
	collisions := expected.Rebuild(persisted)

	report := &dto.IndexReport{Entries: expected.Len(), Collisions: collisions}
	if !s.degraded && s.index.Matches(expected.Entries()) {
		report.Degraded = s.degraded
		return report, nil
	}

	report.Drifted = true
	report.Rebuilt = true
	s.logger.Warn("conflict index diverged from persisted entries",
		zap.Int("index_entries", s.index.Len()),
		zap.Int("persisted_entries", len(persisted)),
		zap.Bool("was_degraded", s.degraded))
	s.index = expected
	s.degraded = hasCommittedCollision(persisted, collisions)
	s.metrics.RecordRebuild("audit")
	s.metrics.RecordIndexState(s.index.Len(), s.degraded)
	report.Degraded = s.degraded
	return report, nil
}

// HandleAuditJob is the queue handler running VerifyIndex.
func (s *TimetableService) HandleAuditJob(ctx context.Context, job jobs.Job) error {
	report, err := s.VerifyIndex(ctx)
	if err != nil {
		return err
	}
	if report.Degraded {
		return fmt.Errorf("index audit %s left service degraded", job.ID)
	}
	return nil
}

func (s *TimetableService) rebuildLocked(ctx context.Context, trigger string) (*dto.IndexReport, error) {
	persisted, err := s.entries.List(ctx, models.EntryFilter{})
	if err != nil {
		s.markDegraded("index rebuild failed", zap.String("trigger", trigger), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load entries for rebuild")
	}
	fresh := NewConflictIndex()
	collisions := fresh.Rebuild(persisted)
	s.index = fresh
	s.degraded = hasCommittedCollision(persisted, collisions)

	s.metrics.RecordRebuild(trigger)
	s.metrics.RecordIndexState(fresh.Len(), s.degraded)
	if len(collisions) > 0 {
		s.logger.Warn("index rebuilt with collisions",
			zap.String("trigger", trigger),
			zap.Int("collisions", len(collisions)),
			zap.Bool("degraded", s.degraded))
	} else {
		s.logger.Info("index rebuilt", zap.String("trigger", trigger), zap.Int("entries", fresh.Len()))
	}
	return &dto.IndexReport{Entries: fresh.Len(), Rebuilt: true, Degraded: s.degraded, Collisions: collisions}, nil
}

// reconcile swaps in an index built from committed and drafts when the live one disagrees.
func (s *TimetableService) reconcile(committed, drafts []models.TimetableEntry, trigger string) {
	union := make([]models.TimetableEntry, 0, len(committed)+len(drafts))
	union = append(union, committed...)
	union = append(union, drafts...)
	expected := NewConflictIndex()
	collisions := expected.Rebuild(union)
	if s.index.Matches(expected.Entries()) {
		return
	}
	s.logger.Warn("conflict index missed persisted entries; rebuilding",
		zap.String("trigger", trigger),
		zap.Int("index_entries", s.index.Len()),
		zap.Int("persisted_entries", len(union)),
		zap.Int("collisions", len(collisions)))
	s.index = expected
	s.metrics.RecordRebuild(trigger)
}

func (s *TimetableService) ensureIndexReady() error {
	if s.degraded {
		s.scheduleAudit("degraded")
		return appErrors.ErrIndexRebuildRequired
	}
	return nil
}

func (s *TimetableService) markDegraded(reason string, fields ...zap.Field) {
	s.degraded = true
	s.logger.Error("conflict index marked degraded", append([]zap.Field{zap.String("reason", reason)}, fields...)...)
	s.metrics.RecordIndexState(s.index.Len(), true)
	s.scheduleAudit("degraded")
}

func (s *TimetableService) scheduleAudit(reason string) {
	if s.audits == nil {
		return
	}
	job := jobs.Job{ID: uuid.NewString(), Type: AuditJobType, Payload: reason}
	if err := s.audits.TryEnqueue(job); err != nil {
		s.logger.Debug("index audit not scheduled", zap.String("reason", reason), zap.Error(err))
	}
}

func (s *TimetableService) unregisterAll(entries []models.TimetableEntry) {
	for _, entry := range entries {
		s.index.Unregister(entry.ID)
	}
}

func (s *TimetableService) invalidateEntries(ctx context.Context) {
	_ = s.cache.InvalidateEntries(ctx)
}

func (s *TimetableService) openBatchID(ctx context.Context) string {
	batch, err := s.drafts.OpenBatch(ctx)
	if err != nil {
		s.logger.Warn("failed to load open batch", zap.Error(err))
		return ""
	}
	if batch == nil {
		return ""
	}
	return batch.ID
}

func (s *TimetableService) loadAllocationInput(ctx context.Context, scope []string) (AllocationInput, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveDBQuery("timetable_reference_load", time.Since(start)) }()

	semesters, err := s.refs.Semesters.List(ctx, scope)
	if err != nil {
		return AllocationInput{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load semesters")
	}
	if len(scope) > 0 {
		known := make(map[string]struct{}, len(semesters))
		for _, semester := range semesters {
			known[semester.ID] = struct{}{}
		}
		for _, id := range scope {
			if _, ok := known[id]; !ok {
				return AllocationInput{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown semester %q", id))
			}
		}
	}

	ids := make([]string, 0, len(semesters))
	for _, semester := range semesters {
		ids = append(ids, semester.ID)
	}
	rows, err := s.refs.Semesters.ListCurricula(ctx, ids)
	if err != nil {
		return AllocationInput{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load semester curricula")
	}
	curricula := make(map[string][]string, len(ids))
	for _, row := range rows {
		curricula[row.SemesterID] = append(curricula[row.SemesterID], row.CourseID)
	}

	teachers, err := s.refs.Teachers.ListWithCourses(ctx)
	if err != nil {
		return AllocationInput{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teachers")
	}
	classrooms, err := s.refs.Classrooms.List(ctx)
	if err != nil {
		return AllocationInput{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load classrooms")
	}

	return AllocationInput{
		Semesters:  semesters,
		Curricula:  curricula,
		Teachers:   teachers,
		Classrooms: classrooms,
	}, nil
}

func (s *TimetableService) entryFromRequest(req dto.UpsertEntryRequest) (models.TimetableEntry, models.EntryStatus, error) {
	if err := s.validator.Struct(req); err != nil {
		return models.TimetableEntry{}, "", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable entry")
	}
	day, ok := models.ParseWeekday(req.Day)
	if !ok {
		return models.TimetableEntry{}, "", appErrors.Clone(appErrors.ErrValidation, "day must be one of MONDAY..FRIDAY")
	}
	window, err := models.ParseSlotWindow(req.StartTime + "-" + req.EndTime)
	if err != nil || !s.grid.Contains(day, window.StartTime, window.EndTime) {
		return models.TimetableEntry{}, "", appErrors.Clone(appErrors.ErrValidation, "start_time and end_time must match a slot of the weekly grid")
	}
	var status models.EntryStatus
	if req.Status != "" {
		status, ok = models.ParseEntryStatus(req.Status)
		if !ok {
			return models.TimetableEntry{}, "", appErrors.Clone(appErrors.ErrValidation, "status must be DRAFT or COMMITTED")
		}
	}
	return models.TimetableEntry{
		ID:          req.ID,
		SemesterID:  req.SemesterID,
		CourseID:    req.CourseID,
		TeacherID:   req.TeacherID,
		ClassroomID: req.ClassroomID,
		Day:         day,
		StartTime:   window.StartTime,
		EndTime:     window.EndTime,
	}, status, nil
}

func (s *TimetableService) checkReferences(ctx context.Context, entry models.TimetableEntry) error {
	checks := []struct {
		field  string
		id     string
		exists func(context.Context, string) (bool, error)
	}{
		{"semester_id", entry.SemesterID, s.refs.Semesters.Exists},
		{"course_id", entry.CourseID, s.refs.Courses.Exists},
		{"teacher_id", entry.TeacherID, s.refs.Teachers.Exists},
		{"classroom_id", entry.ClassroomID, s.refs.Classrooms.Exists},
	}
	for _, check := range checks {
		ok, err := check.exists(ctx, check.id)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify "+check.field)
		}
		if !ok {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown %s %q", check.field, check.id))
		}
	}
	return nil
}

func hasCommittedCollision(persisted []models.TimetableEntry, collisions []models.DraftConflict) bool {
	if len(collisions) == 0 {
		return false
	}
	status := make(map[string]models.EntryStatus, len(persisted))
	for _, entry := range persisted {
		status[entry.ID] = entry.Status
	}
	for _, c := range collisions {
		if status[c.EntryID] == models.EntryStatusCommitted {
			return true
		}
	}
	return false
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func sortedDraftIDs(conflicts []models.DraftConflict) []string {
	ids := make([]string, 0, len(conflicts))
	for _, c := range conflicts {
		ids = append(ids, c.EntryID)
	}
	sort.Strings(ids)
	return ids
}
