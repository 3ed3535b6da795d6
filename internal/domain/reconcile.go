package domain

import "time"

// Action is the write a reconciliation calls for.
type Action int

const (
	ActionNoOp Action = iota
	ActionInsert
	ActionUpdate
)

func (a Action) String() string {
	switch a {
	case ActionInsert:
		return "insert"
	case ActionUpdate:
		return "update"
	default:
		return "noop"
	}
}

// FieldUpdate sets one column to a new value.
type FieldUpdate struct {
	Field Field
	Value any
}

// Result is the outcome of reconciling one incoming event.
type Result struct {
	Action    Action
	ID        string
	Event     EarthquakeEvent // full incoming state, written on insert
	Updates   []FieldUpdate
	Changes   []FieldChange
	UpdatedAt time.Time
}

// Reconcile decides how to bring the stored state in line with incoming.
// A nil existing event is an insert. Otherwise each entry of Fields is
// compared in order; every difference becomes one FieldUpdate and one
// FieldChange stamped with at. No differences is a no-op.
//
// Both events must have been normalized by ParseRawEvent.
func Reconcile(existing *EarthquakeEvent, incoming EarthquakeEvent, at time.Time) Result {
	if existing == nil {
		return Result{Action: ActionInsert, ID: incoming.ID, Event: incoming}
	}

	var (
		updates []FieldUpdate
		changes []FieldChange
	)
	for _, f := range Fields {
		if f.Equal(existing, &incoming) {
			continue
		}
		updates = append(updates, FieldUpdate{Field: f, Value: f.Value(&incoming)})
		changes = append(changes, FieldChange{
			EarthquakeID: existing.ID,
			FieldName:    f.Column,
			OldValue:     f.Display(existing),
			NewValue:     f.Display(&incoming),
			UpdateTime:   at,
		})
	}

	if len(updates) == 0 {
		return Result{Action: ActionNoOp, ID: existing.ID}
	}
	return Result{
		Action:    ActionUpdate,
		ID:        existing.ID,
		Event:     incoming,
		Updates:   updates,
		Changes:   changes,
		UpdatedAt: at,
	}
}
