package core

import "fmt"

// TransitionResult is the pure outcome of applying an event to a booking state.
// Command is empty when no notification is due.
type TransitionResult struct {
	From    BookingStatus
	To      BookingStatus
	Command NotificationKind
	Changed bool
	// Reason explains an absorbed event; empty for state changes.
	Reason string
}

type transitionRule struct {
	to      BookingStatus
	command NotificationKind
}

// transitionTable lists every state change. Pairs missing from the table are
// absorbed as no-ops; BookingStatusCancelled has no outgoing entries.
var transitionTable = map[BookingStatus]map[EventKind]transitionRule{
	BookingStatusPending: {
		EventKindPaymentSucceeded: {to: BookingStatusConfirmed, command: NotificationBookingConfirmation},
		EventKindPaymentFailed:    {to: BookingStatusPaymentFailed, command: NotificationPaymentFailureNotice},
		EventKindSessionCanceled:  {to: BookingStatusCancelled, command: NotificationBookingCancellation},
	},
	BookingStatusConfirmed: {
		EventKindSessionCanceled: {to: BookingStatusCancelled, command: NotificationBookingCancellation},
	},
	BookingStatusPaymentFailed: {
		EventKindPaymentSucceeded: {to: BookingStatusConfirmed, command: NotificationBookingConfirmation},
		EventKindSessionCanceled:  {to: BookingStatusCancelled, command: NotificationBookingCancellation},
	},
}

// Transition maps (current state, event) to the next state and the side effect
// it owes. It never fails: out-of-order and duplicate deliveries are expected
// and are absorbed with a reason.
func Transition(current BookingStatus, event Event) TransitionResult {
	result := TransitionResult{From: current, To: current}
	if event == nil {
		result.Reason = "no event"
		return result
	}
	kind := event.Kind()
	if kind == EventKindIgnored {
		result.Reason = "ignored event type"
		return result
	}

	if current == BookingStatusNone {
		booked, ok := event.(SessionBooked)
		if !ok {
			result.Reason = fmt.Sprintf("%s received before the booking exists", kind)
			return result
		}
		result.Changed = true
		if booked.RequiresPayment {
			result.To = BookingStatusPending
			return result
		}
		result.To = BookingStatusConfirmed
		result.Command = NotificationBookingConfirmation
		return result
	}

	rule, ok := transitionTable[current][kind]
	if !ok {
		result.Reason = absorbedReason(current, kind)
		return result
	}
	result.To = rule.to
	result.Command = rule.command
	result.Changed = true
	return result
}

// TransitionAllowed reports whether kind moves a booking out of current.
func TransitionAllowed(current BookingStatus, kind EventKind) bool {
	_, ok := transitionTable[current][kind]
	return ok
}

const reasonPaymentAfterCancellation = "payment_after_cancellation"

func absorbedReason(current BookingStatus, kind EventKind) string {
	switch {
	case current == BookingStatusCancelled && kind == EventKindPaymentSucceeded:
		return reasonPaymentAfterCancellation
	case current == BookingStatusCancelled:
		return fmt.Sprintf("%s absorbed by cancelled booking", kind)
	case kind == EventKindSessionBooked:
		return "booking already exists"
	default:
		return fmt.Sprintf("%s not applicable in state %s", kind, current)
	}
}
