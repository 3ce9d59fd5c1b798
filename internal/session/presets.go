package session

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Role says whether a preset arms a work or a break timer.
type Role string

const (
	RoleWork  Role = "work"
	RoleBreak Role = "break"
)

// CounterEffect is what selecting a preset does to the consecutive count.
type CounterEffect string

const (
	CounterNone      CounterEffect = "none"
	CounterIncrement CounterEffect = "increment"
	CounterReset     CounterEffect = "reset"
)

// Preset is one selectable timer duration.
type Preset struct {
	ID       string        `yaml:"id"`
	Label    string        `yaml:"label"`
	Duration time.Duration `yaml:"duration"`
	Role     Role          `yaml:"role"`
	Counter  CounterEffect `yaml:"counter"`
}

// Apply returns the consecutive count after selecting p.
func (p Preset) Apply(count int) int {
	switch p.Counter {
	case CounterIncrement:
		return count + 1
	case CounterReset:
		return 0
	default:
		return count
	}
}

// Choice returns the preset as an offered choice.
func (p Preset) Choice() Choice {
	return Choice{ID: p.ID, Label: p.Label}
}

// PresetTable is the ordered set of presets consulted both when offering
// durations and when handling a selection.
type PresetTable struct {
	presets []Preset
	byID    map[string]Preset
}

// DefaultPresets returns the stock table: 50 and 90 minute work timers,
// 20/15/10 minute breaks and a 60 minute break that resets the count.
// The 90 minute timer leaves the count untouched.
func DefaultPresets() *PresetTable {
	t, err := NewPresetTable([]Preset{
		{ID: "work-50", Label: "50 minutes", Duration: 50 * time.Minute, Role: RoleWork, Counter: CounterIncrement},
		{ID: "work-90", Label: "90 minutes", Duration: 90 * time.Minute, Role: RoleWork, Counter: CounterNone},
		{ID: "break-20", Label: "20 minutes", Duration: 20 * time.Minute, Role: RoleBreak, Counter: CounterNone},
		{ID: "break-15", Label: "15 minutes", Duration: 15 * time.Minute, Role: RoleBreak, Counter: CounterNone},
		{ID: "break-10", Label: "10 minutes", Duration: 10 * time.Minute, Role: RoleBreak, Counter: CounterNone},
		{ID: "break-60", Label: "60 minutes", Duration: 60 * time.Minute, Role: RoleBreak, Counter: CounterReset},
	})
	if err != nil {
		panic("session: invalid default presets: " + err.Error())
	}
	return t
}

// NewPresetTable validates presets and builds a table.
func NewPresetTable(presets []Preset) (*PresetTable, error) {
	t := &PresetTable{byID: make(map[string]Preset, len(presets))}
	var hasWork, hasBreak bool
	for _, p := range presets {
		if p.ID == "" {
			return nil, errors.New("preset id cannot be empty")
		}
		if _, dup := t.byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate preset id %q", p.ID)
		}
		if isReservedChoice(p.ID) {
			return nil, fmt.Errorf("preset id %q collides with an action", p.ID)
		}
		if p.Duration <= 0 {
			return nil, fmt.Errorf("preset %q: duration must be > 0", p.ID)
		}
		switch p.Role {
		case RoleWork:
			hasWork = true
		case RoleBreak:
			hasBreak = true
		default:
			return nil, fmt.Errorf("preset %q: unknown role %q", p.ID, p.Role)
		}
		if p.Counter == "" {
			p.Counter = CounterNone
		}
		switch p.Counter {
		case CounterNone, CounterIncrement, CounterReset:
		default:
			return nil, fmt.Errorf("preset %q: unknown counter effect %q", p.ID, p.Counter)
		}
		if p.Label == "" {
			p.Label = fmt.Sprintf("%d minutes", int(p.Duration.Minutes()))
		}
		t.presets = append(t.presets, p)
		t.byID[p.ID] = p
	}
	if !hasWork || !hasBreak {
		return nil, errors.New("preset table needs at least one work and one break preset")
	}
	return t, nil
}

type presetFile struct {
	Presets []Preset `yaml:"presets"`
}

// LoadPresets reads a YAML preset table from path.
func LoadPresets(path string) (*PresetTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read presets: %w", err)
	}
	var file presetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse presets: %w", err)
	}
	t, err := NewPresetTable(file.Presets)
	if err != nil {
		return nil, fmt.Errorf("invalid presets in %s: %w", path, err)
	}
	return t, nil
}

// Lookup returns the preset with the given id.
func (t *PresetTable) Lookup(id string) (Preset, bool) {
	p, ok := t.byID[id]
	return p, ok
}

// Choices returns the presets of role, in table order.
func (t *PresetTable) Choices(role Role) []Choice {
	var out []Choice
	for _, p := range t.presets {
		if p.Role == role {
			out = append(out, p.Choice())
		}
	}
	return out
}
