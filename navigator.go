package awardwizard

// TotalSteps is the number of wizard steps, including the review step.
const TotalSteps = 5

// Position is the wizard's current and highest reached step.
type Position struct {
	Current   int `json:"currentStep"`
	Completed int `json:"completedStep"`
}

// InitialPosition is where a fresh wizard starts.
func InitialPosition() Position {
	return Position{Current: 1, Completed: 1}
}

// Normalize clamps p into [1, total] and restores Current <= Completed.
func (p Position) Normalize(total int) Position {
	if p.Completed < 1 || p.Completed > total {
		p.Completed = 1
	}
	if p.Current < 1 || p.Current > total {
		p.Current = 1
	}
	if p.Current > p.Completed {
		p.Completed = p.Current
	}
	return p
}

// Navigator is the step state machine. Illegal transitions are no-ops.
type Navigator struct {
	total int
	pos   Position
}

// NewNavigator creates a navigator over total steps starting at pos.
func NewNavigator(total int, pos Position) *Navigator {
	if total < 1 {
		total = 1
	}
	return &Navigator{total: total, pos: pos.Normalize(total)}
}

// Position returns the current position.
func (n *Navigator) Position() Position { return n.pos }

// Total returns the step count.
func (n *Navigator) Total() int { return n.total }

// Advance moves forward one step when not on the last step.
func (n *Navigator) Advance() bool {
	if n.pos.Current >= n.total {
		return false
	}
	n.pos.Completed = max(n.pos.Completed, n.pos.Current+1)
	n.pos.Current++
	return true
}

// Retreat moves back one step when not on the first step.
// Completed is unaffected.
func (n *Navigator) Retreat() bool {
	if n.pos.Current <= 1 {
		return false
	}
	n.pos.Current--
	return true
}

// JumpTo moves to any already reached step, including the current one.
func (n *Navigator) JumpTo(step int) bool {
	if step < 1 || step > n.pos.Completed {
		return false
	}
	n.pos.Current = step
	return true
}

// CanJumpTo reports whether JumpTo(step) would succeed.
func (n *Navigator) CanJumpTo(step int) bool {
	return step >= 1 && step <= n.pos.Completed
}

// Reset returns to the initial position.
func (n *Navigator) Reset() {
	n.pos = InitialPosition()
}

// IsLast reports whether the current step is the final one.
func (n *Navigator) IsLast() bool {
	return n.pos.Current == n.total
}
