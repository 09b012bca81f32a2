package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Weekday is one of the five teaching days.
type Weekday string

const (
	Monday    Weekday = "MONDAY"
	Tuesday   Weekday = "TUESDAY"
	Wednesday Weekday = "WEDNESDAY"
	Thursday  Weekday = "THURSDAY"
	Friday    Weekday = "FRIDAY"
)

var weekdayOrder = map[Weekday]int{
	Monday:    1,
	Tuesday:   2,
	Wednesday: 3,
	Thursday:  4,
	Friday:    5,
}

// Weekdays lists the teaching days in calendar order.
func Weekdays() []Weekday {
	return []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday}
}

// ParseWeekday accepts a day name in any case.
func ParseWeekday(raw string) (Weekday, bool) {
	day := Weekday(strings.ToUpper(strings.TrimSpace(raw)))
	_, ok := weekdayOrder[day]
	return day, ok
}

// Slot is the grain at which bookings conflict.
type Slot struct {
	Day       Weekday `json:"day"`
	StartTime string  `json:"start_time"`
}

// SlotWindow is a daily teaching window in HH:MM form.
type SlotWindow struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// ParseSlotWindow parses "HH:MM-HH:MM".
func ParseSlotWindow(raw string) (SlotWindow, error) {
	parts := strings.SplitN(strings.TrimSpace(raw), "-", 2)
	if len(parts) != 2 {
		return SlotWindow{}, fmt.Errorf("slot window %q must be HH:MM-HH:MM", raw)
	}
	start, err := normaliseClock(parts[0])
	if err != nil {
		return SlotWindow{}, err
	}
	end, err := normaliseClock(parts[1])
	if err != nil {
		return SlotWindow{}, err
	}
	if end <= start {
		return SlotWindow{}, fmt.Errorf("slot window %q ends before it starts", raw)
	}
	return SlotWindow{StartTime: start, EndTime: end}, nil
}

func normaliseClock(raw string) (string, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid clock value %q: %w", raw, err)
	}
	return t.Format("15:04"), nil
}

// SlotDefinition is one bookable (day, window) cell of the weekly grid.
type SlotDefinition struct {
	Day       Weekday `json:"day"`
	StartTime string  `json:"start_time"`
	EndTime   string  `json:"end_time"`
}

// Slot returns the conflict key of the definition.
func (d SlotDefinition) Slot() Slot {
	return Slot{Day: d.Day, StartTime: d.StartTime}
}

// SlotGrid is the fixed weekly catalogue of bookable slots. Iteration order is
// day-major (Monday first) then by window start, and never changes for a given grid.
type SlotGrid struct {
	slots []SlotDefinition
	index map[Slot]SlotDefinition
}

// DefaultSlotWindows are the two daily windows used when none are configured.
func DefaultSlotWindows() []SlotWindow {
	return []SlotWindow{
		{StartTime: "09:00", EndTime: "12:00"},
		{StartTime: "14:00", EndTime: "17:00"},
	}
}

// DefaultSlotGrid is five weekdays by the default windows.
func DefaultSlotGrid() *SlotGrid {
	grid, err := NewSlotGrid(Weekdays(), DefaultSlotWindows())
	if err != nil {
		panic(err)
	}
	return grid
}

// NewSlotGrid builds a grid from teaching days and daily windows.
func NewSlotGrid(days []Weekday, windows []SlotWindow) (*SlotGrid, error) {
	if len(days) == 0 {
		return nil, fmt.Errorf("slot grid requires at least one day")
	}
	if len(windows) == 0 {
		return nil, fmt.Errorf("slot grid requires at least one window")
	}

	seenDays := make(map[Weekday]bool, len(days))
	orderedDays := make([]Weekday, 0, len(days))
	for _, day := range days {
		if _, ok := weekdayOrder[day]; !ok {
			return nil, fmt.Errorf("unsupported teaching day %q", day)
		}
		if seenDays[day] {
			continue
		}
		seenDays[day] = true
		orderedDays = append(orderedDays, day)
	}
	sort.Slice(orderedDays, func(i, j int) bool {
		return weekdayOrder[orderedDays[i]] < weekdayOrder[orderedDays[j]]
	})

	orderedWindows := make([]SlotWindow, len(windows))
	copy(orderedWindows, windows)
	sort.Slice(orderedWindows, func(i, j int) bool {
		return orderedWindows[i].StartTime < orderedWindows[j].StartTime
	})
	for i := 1; i < len(orderedWindows); i++ {
		if orderedWindows[i].StartTime < orderedWindows[i-1].EndTime {
			return nil, fmt.Errorf("slot windows %s-%s and %s-%s overlap",
				orderedWindows[i-1].StartTime, orderedWindows[i-1].EndTime,
				orderedWindows[i].StartTime, orderedWindows[i].EndTime)
		}
	}

	grid := &SlotGrid{
		slots: make([]SlotDefinition, 0, len(orderedDays)*len(orderedWindows)),
		index: make(map[Slot]SlotDefinition, len(orderedDays)*len(orderedWindows)),
	}
	for _, day := range orderedDays {
		for _, window := range orderedWindows {
			def := SlotDefinition{Day: day, StartTime: window.StartTime, EndTime: window.EndTime}
			grid.slots = append(grid.slots, def)
			grid.index[def.Slot()] = def
		}
	}
	return grid, nil
}

// Slots returns the ordered enumeration. The returned slice is a copy.
func (g *SlotGrid) Slots() []SlotDefinition {
	out := make([]SlotDefinition, len(g.slots))
	copy(out, g.slots)
	return out
}

// Len reports the number of slots per week.
func (g *SlotGrid) Len() int {
	return len(g.slots)
}

// Lookup resolves a (day, start) pair to its definition.
func (g *SlotGrid) Lookup(day Weekday, start string) (SlotDefinition, bool) {
	def, ok := g.index[Slot{Day: day, StartTime: start}]
	return def, ok
}

// Contains reports whether (day, start, end) matches a grid window exactly.
func (g *SlotGrid) Contains(day Weekday, start, end string) bool {
	def, ok := g.Lookup(day, start)
	return ok && def.EndTime == end
}

// ParseSlotGrid builds a grid from configuration strings, falling back to the
// defaults for empty inputs.
func ParseSlotGrid(rawDays, rawWindows []string) (*SlotGrid, error) {
	days := Weekdays()
	if len(rawDays) > 0 {
		days = make([]Weekday, 0, len(rawDays))
		for _, raw := range rawDays {
			day, ok := ParseWeekday(raw)
			if !ok {
				return nil, fmt.Errorf("unsupported teaching day %q", raw)
			}
			days = append(days, day)
		}
	}
	windows := DefaultSlotWindows()
	if len(rawWindows) > 0 {
		windows = make([]SlotWindow, 0, len(rawWindows))
		for _, raw := range rawWindows {
			window, err := ParseSlotWindow(raw)
			if err != nil {
				return nil, err
			}
			windows = append(windows, window)
		}
	}
	return NewSlotGrid(days, windows)
}
