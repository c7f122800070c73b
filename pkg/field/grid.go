package field

import (
	"fmt"
	"time"
)

// Day identifies a weekday column in availability grids.
type Day string

const (
	Monday    Day = "monday"
	Tuesday   Day = "tuesday"
	Wednesday Day = "wednesday"
	Thursday  Day = "thursday"
	Friday    Day = "friday"
	Saturday  Day = "saturday"
	Sunday    Day = "sunday"
)

// Days lists the week in display order.
var Days = []Day{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

const (
	DefaultDayStart = "09:00"
	DefaultDayEnd   = "17:00"
)

// DayAvailability is one day of a weekly availability grid.
type DayAvailability struct {
	Available bool   `json:"available"`
	Start     string `json:"start"`
	End       string `json:"end"`
}

// Week maps days to their availability.
type Week map[Day]DayAvailability

// WeekGrid binds a weekly availability grid to one field. The stored value is
// a JSON-compatible map so rules can address `availability.monday.available`.
type WeekGrid struct {
	Name         string
	DefaultStart string
	DefaultEnd   string
}

func (g WeekGrid) defaults() (string, string) {
	start, end := g.DefaultStart, g.DefaultEnd
	if start == "" {
		start = DefaultDayStart
	}
	if end == "" {
		end = DefaultDayEnd
	}
	return start, end
}

// Decode reads a stored grid value, filling missing days with unavailable
// defaults.
func (g WeekGrid) Decode(value any) Week {
	start, end := g.defaults()
	week := make(Week, len(Days))
	for _, day := range Days {
		week[day] = DayAvailability{Start: start, End: end}
	}

	switch v := value.(type) {
	case Week:
		for day, entry := range v {
			week[day] = entry
		}
	case map[string]any:
		for key, raw := range v {
			entry, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			day := Day(key)
			current := week[day]
			if b, ok := entry["available"].(bool); ok {
				current.Available = b
			}
			if s, ok := entry["start"].(string); ok && s != "" {
				current.Start = s
			}
			if s, ok := entry["end"].(string); ok && s != "" {
				current.End = s
			}
			week[day] = current
		}
	}
	return week
}

// Encode converts a week into the stored representation.
func (g WeekGrid) Encode(week Week) map[string]any {
	out := make(map[string]any, len(week))
	for day, entry := range week {
		out[string(day)] = map[string]any{
			"available": entry.Available,
			"start":     entry.Start,
			"end":       entry.End,
		}
	}
	return out
}

// ToggleDay flips one day's availability and forwards the whole grid.
func (g WeekGrid) ToggleDay(store Store, day Day) map[string]any {
	week := g.Decode(store.Get(g.Name, nil))
	entry := week[day]
	entry.Available = !entry.Available
	week[day] = entry
	return store.Apply(Change{Name: g.Name, Value: g.Encode(week)})
}

// SetHours updates one day's hours and forwards the whole grid. End must be
// after start.
func (g WeekGrid) SetHours(store Store, day Day, start, end string) (map[string]any, error) {
	from, err := time.Parse(TimeLayout, start)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s start %q", ErrInvalidInput, g.Name, day, start)
	}
	to, err := time.Parse(TimeLayout, end)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s end %q", ErrInvalidInput, g.Name, day, end)
	}
	if !to.After(from) {
		return nil, fmt.Errorf("%w: %s %s ends before it starts", ErrInvalidInput, g.Name, day)
	}

	week := g.Decode(store.Get(g.Name, nil))
	entry := week[day]
	entry.Start, entry.End = start, end
	week[day] = entry
	return store.Apply(Change{Name: g.Name, Value: g.Encode(week)}), nil
}

// SlotGrid binds the client scheduling shape: time slot -> day -> booked.
type SlotGrid struct {
	Name  string
	Slots []string
}

// Decode reads a stored slot grid; unknown cells read as false.
func (g SlotGrid) Decode(value any) map[string]map[Day]bool {
	out := make(map[string]map[Day]bool, len(g.Slots))
	for _, slot := range g.Slots {
		row := make(map[Day]bool, len(Days))
		for _, day := range Days {
			row[day] = false
		}
		out[slot] = row
	}
	stored, _ := value.(map[string]any)
	for slot, raw := range stored {
		cells, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		row, ok := out[slot]
		if !ok {
			row = make(map[Day]bool, len(Days))
			out[slot] = row
		}
		for day, v := range cells {
			if b, ok := v.(bool); ok {
				row[Day(day)] = b
			}
		}
	}
	return out
}

// ToggleSlot flips one cell and forwards the whole grid.
func (g SlotGrid) ToggleSlot(store Store, slot string, day Day) map[string]any {
	grid := g.Decode(store.Get(g.Name, nil))
	row, ok := grid[slot]
	if !ok {
		row = make(map[Day]bool, len(Days))
		grid[slot] = row
	}
	row[day] = !row[day]

	encoded := make(map[string]any, len(grid))
	for s, cells := range grid {
		r := make(map[string]any, len(cells))
		for d, b := range cells {
			r[string(d)] = b
		}
		encoded[s] = r
	}
	return store.Apply(Change{Name: g.Name, Value: encoded})
}
