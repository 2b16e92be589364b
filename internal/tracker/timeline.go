package tracker

import "github.com/MwailaCoding/storefront/pkg/enums"

// StepState is how a timeline step is rendered.
type StepState string

const (
	StepCompleted StepState = "completed"
	StepActive    StepState = "active"
	StepPending   StepState = "pending"
)

// TimelineStep is one stage of the canonical order progression.
type TimelineStep struct {
	Status enums.OrderStatus `json:"status"`
	Label  string            `json:"label"`
	State  StepState         `json:"state"`
}

// Timeline is the rendered progression for a status.
type Timeline struct {
	Steps     []TimelineStep `json:"steps"`
	Cancelled bool           `json:"cancelled"`
	Terminal  bool           `json:"terminal"`
}

// BuildTimeline renders the progression for status. Steps before the current
// one are completed and later ones pending. A delivered order has every step
// completed; a cancelled or unknown status leaves every step pending.
func BuildTimeline(status enums.OrderStatus) Timeline {
	current := status.Step()
	steps := make([]TimelineStep, len(enums.OrderProgression))
	for i, s := range enums.OrderProgression {
		state := StepPending
		switch {
		case current < 0:
		case i < current, status == enums.OrderStatusDelivered:
			state = StepCompleted
		case i == current:
			state = StepActive
		}
		steps[i] = TimelineStep{Status: s, Label: s.Label(), State: state}
	}
	return Timeline{
		Steps:     steps,
		Cancelled: status == enums.OrderStatusCancelled,
		Terminal:  status.IsTerminal(),
	}
}
