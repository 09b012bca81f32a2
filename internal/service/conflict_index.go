package service

import (
	"sort"

	"github.com/noah-isme/sma-timetable/internal/models"
)

// slotKey is the composite key shared by all three uniqueness maps.
type slotKey struct {
	resource string
	day      models.Weekday
	start    string
}

func keyFor(resourceID string, slot models.Slot) slotKey {
	return slotKey{resource: resourceID, day: slot.Day, start: slot.StartTime}
}

type dimensionKey struct {
	dim models.ConflictDimension
	key slotKey
}

// dimensionKeys derives the classroom, semester and teacher keys of an entry in report order.
func dimensionKeys(entry models.TimetableEntry) [3]dimensionKey {
	slot := entry.Slot()
	return [3]dimensionKey{
		{models.DimensionClassroom, keyFor(entry.ClassroomID, slot)},
		{models.DimensionSemester, keyFor(entry.SemesterID, slot)},
		{models.DimensionTeacher, keyFor(entry.TeacherID, slot)},
	}
}

// ConflictIndex enforces at most one booking per classroom, semester and teacher per slot.
// It is not safe for concurrent use; TimetableService serialises access.
type ConflictIndex struct {
	maps    map[models.ConflictDimension]map[slotKey]string
	entries map[string]models.TimetableEntry
}

// NewConflictIndex returns an empty index.
func NewConflictIndex() *ConflictIndex {
	idx := &ConflictIndex{}
	idx.reset()
	return idx
}

func (x *ConflictIndex) reset() {
	x.maps = map[models.ConflictDimension]map[slotKey]string{
		models.DimensionClassroom: {},
		models.DimensionSemester:  {},
		models.DimensionTeacher:   {},
	}
	x.entries = map[string]models.TimetableEntry{}
}

// Check reports every dimension the candidate would violate. Bookings held by excludeID are
// ignored so an entry never conflicts with its own prior version.
func (x *ConflictIndex) Check(candidate models.TimetableEntry, excludeID string) *models.ConflictError {
	var conflicts []models.Conflict
	for _, dk := range dimensionKeys(candidate) {
		holder, ok := x.maps[dk.dim][dk.key]
		if !ok || (excludeID != "" && holder == excludeID) {
			continue
		}
		conflicts = append(conflicts, models.Conflict{
			Dimension:       dk.dim,
			BlockingEntryID: holder,
			Day:             candidate.Day,
			StartTime:       candidate.StartTime,
		})
	}
	if len(conflicts) == 0 {
		return nil
	}
	return &models.ConflictError{EntryID: candidate.ID, Conflicts: conflicts}
}

// Register books the entry in all three maps. A prior registration under the same id is
// replaced. It returns the conflict and leaves the index untouched when the entry collides.
func (x *ConflictIndex) Register(entry models.TimetableEntry) *models.ConflictError {
	if conflict := x.Check(entry, entry.ID); conflict != nil {
		return conflict
	}
	x.Unregister(entry.ID)
	for _, dk := range dimensionKeys(entry) {
		x.maps[dk.dim][dk.key] = entry.ID
	}
	x.entries[entry.ID] = entry
	return nil
}

// Unregister releases every booking held by the entry id. Unknown ids are ignored.
func (x *ConflictIndex) Unregister(entryID string) bool {
	prior, ok := x.entries[entryID]
	if !ok {
		return false
	}
	for _, dk := range dimensionKeys(prior) {
		if x.maps[dk.dim][dk.key] == entryID {
			delete(x.maps[dk.dim], dk.key)
		}
	}
	delete(x.entries, entryID)
	return true
}

// Rebuild clears the index and registers committed entries before drafts, each in id order.
// Entries that collide with an earlier one are left out and returned.
func (x *ConflictIndex) Rebuild(entries []models.TimetableEntry) []models.DraftConflict {
	x.reset()
	ordered := make([]models.TimetableEntry, len(entries))
	copy(ordered, entries)
	sort.SliceStable(ordered, func(i, j int) bool {
		ci := ordered[i].Status == models.EntryStatusCommitted
		cj := ordered[j].Status == models.EntryStatusCommitted
		if ci != cj {
			return ci
		}
		return ordered[i].ID < ordered[j].ID
	})

	var collisions []models.DraftConflict
	for _, entry := range ordered {
		if conflict := x.Register(entry); conflict != nil {
			collisions = append(collisions, models.DraftConflict{EntryID: entry.ID, Conflicts: conflict.Conflicts})
		}
	}
	return collisions
}

// Get returns the registered version of an entry.
func (x *ConflictIndex) Get(entryID string) (models.TimetableEntry, bool) {
	entry, ok := x.entries[entryID]
	return entry, ok
}

// Len reports the number of registered entries.
func (x *ConflictIndex) Len() int {
	return len(x.entries)
}

// Entries returns the registered entries ordered by id.
func (x *ConflictIndex) Entries() []models.TimetableEntry {
	out := make([]models.TimetableEntry, 0, len(x.entries))
	for _, entry := range x.entries {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Matches reports whether the index holds exactly the bookings described by persisted.
func (x *ConflictIndex) Matches(persisted []models.TimetableEntry) bool {
	if len(persisted) != len(x.entries) {
		return false
	}
	for _, entry := range persisted {
		held, ok := x.entries[entry.ID]
		if !ok || !sameBooking(held, entry) {
			return false
		}
	}
	return true
}

func sameBooking(a, b models.TimetableEntry) bool {
	return a.SemesterID == b.SemesterID &&
		a.TeacherID == b.TeacherID &&
		a.ClassroomID == b.ClassroomID &&
		a.Day == b.Day &&
		a.StartTime == b.StartTime
}
