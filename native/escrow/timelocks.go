package escrow

import "fmt"

// Action enumerates the escrow entrypoints gated by the timelock schedule.
type Action uint8

const (
	ActionWithdraw Action = iota + 1
	ActionWithdrawTo
	ActionPublicWithdraw
	ActionCancel
	ActionPublicCancel
	ActionRescue
)

func (a Action) String() string {
	switch a {
	case ActionWithdraw:
		return "withdraw"
	case ActionWithdrawTo:
		return "withdraw_to"
	case ActionPublicWithdraw:
		return "public_withdraw"
	case ActionCancel:
		return "cancel"
	case ActionPublicCancel:
		return "public_cancel"
	case ActionRescue:
		return "rescue_funds"
	default:
		return "unknown"
	}
}

// Timelocks holds the phase boundaries of an escrow, unix seconds. Boundaries
// must be non-decreasing in the order they are declared. The destination side
// has no public cancellation window and keeps that boundary at zero.
type Timelocks struct {
	WithdrawalStart         int64
	PublicWithdrawalStart   int64
	CancellationStart       int64
	PublicCancellationStart int64
	RescueStart             int64
}

// Validate enforces the non-decreasing boundary invariant. A misordered
// schedule can make windows unreachable, so creation must reject it.
func (t Timelocks) Validate(side Side) error {
	if t.WithdrawalStart > t.PublicWithdrawalStart {
		return fmt.Errorf("%w: public withdrawal opens before private withdrawal", ErrInvalidParams)
	}
	if t.PublicWithdrawalStart > t.CancellationStart {
		return fmt.Errorf("%w: cancellation opens before public withdrawal", ErrInvalidParams)
	}
	if side == SideDestination {
		if t.PublicCancellationStart != 0 {
			return fmt.Errorf("%w: destination escrow has no public cancellation window", ErrInvalidParams)
		}
		if t.CancellationStart > t.RescueStart {
			return fmt.Errorf("%w: rescue opens before cancellation", ErrInvalidParams)
		}
		return nil
	}
	if t.CancellationStart > t.PublicCancellationStart {
		return fmt.Errorf("%w: public cancellation opens before private cancellation", ErrInvalidParams)
	}
	if t.PublicCancellationStart > t.RescueStart {
		return fmt.Errorf("%w: rescue opens before public cancellation", ErrInvalidParams)
	}
	return nil
}

// CheckWindow classifies now against the window for one action. Withdrawal
// windows close when cancellation opens; cancellation and rescue windows stay
// open forever once reached.
func (t Timelocks) CheckWindow(action Action, now int64) error {
	switch action {
	case ActionWithdraw, ActionWithdrawTo:
		if now < t.WithdrawalStart {
			return ErrTooEarly
		}
		if now >= t.CancellationStart {
			return ErrTooLate
		}
	case ActionPublicWithdraw:
		if now < t.PublicWithdrawalStart {
			return ErrTooEarly
		}
		if now >= t.CancellationStart {
			return ErrTooLate
		}
	case ActionCancel:
		if now < t.CancellationStart {
			return ErrTooEarly
		}
	case ActionPublicCancel:
		if now < t.PublicCancellationStart {
			return ErrTooEarly
		}
	case ActionRescue:
		if now < t.RescueStart {
			return ErrTooEarly
		}
	default:
		return fmt.Errorf("escrow: unknown action %d", action)
	}
	return nil
}

// PermittedActions returns every action whose window is open at now for the
// given side. Adjacent windows overlap by design: inside the overlap the
// caller picks the entrypoint, nothing here imposes a priority.
func (t Timelocks) PermittedActions(side Side, now int64) []Action {
	pol := side.policy()
	candidates := []Action{ActionWithdraw, ActionPublicWithdraw, ActionCancel, ActionRescue}
	if pol.allowsWithdrawTo {
		candidates = append(candidates, ActionWithdrawTo)
	}
	if pol.allowsPublicCancel {
		candidates = append(candidates, ActionPublicCancel)
	}
	permitted := make([]Action, 0, len(candidates))
	for _, action := range candidates {
		if t.CheckWindow(action, now) == nil {
			permitted = append(permitted, action)
		}
	}
	return permitted
}
