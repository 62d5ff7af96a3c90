package core

import "testing"

func TestTransitionTable(t *testing.T) {
	booked := SessionBooked{RequiresPayment: true}
	cases := []struct {
		name    string
		from    BookingStatus
		event   Event
		to      BookingStatus
		command NotificationKind
		changed bool
	}{
		{"booked requiring payment", BookingStatusNone, booked, BookingStatusPending, "", true},
		{"booked free session", BookingStatusNone, SessionBooked{}, BookingStatusConfirmed, NotificationBookingConfirmation, true},
		{"payment confirms", BookingStatusPending, PaymentSucceeded{}, BookingStatusConfirmed, NotificationBookingConfirmation, true},
		{"payment fails", BookingStatusPending, PaymentFailed{}, BookingStatusPaymentFailed, NotificationPaymentFailureNotice, true},
		{"pending cancelled", BookingStatusPending, SessionCanceled{}, BookingStatusCancelled, NotificationBookingCancellation, true},
		{"confirmed cancelled", BookingStatusConfirmed, SessionCanceled{}, BookingStatusCancelled, NotificationBookingCancellation, true},
		{"payment retry confirms", BookingStatusPaymentFailed, PaymentSucceeded{}, BookingStatusConfirmed, NotificationBookingConfirmation, true},
		{"failed booking cancelled", BookingStatusPaymentFailed, SessionCanceled{}, BookingStatusCancelled, NotificationBookingCancellation, true},
		{"confirmed ignores second payment", BookingStatusConfirmed, PaymentSucceeded{}, BookingStatusConfirmed, "", false},
		{"confirmed ignores payment failure", BookingStatusConfirmed, PaymentFailed{}, BookingStatusConfirmed, "", false},
		{"failed ignores repeated failure", BookingStatusPaymentFailed, PaymentFailed{}, BookingStatusPaymentFailed, "", false},
		{"cancelled absorbs payment", BookingStatusCancelled, PaymentSucceeded{}, BookingStatusCancelled, "", false},
		{"cancelled absorbs failure", BookingStatusCancelled, PaymentFailed{}, BookingStatusCancelled, "", false},
		{"cancelled absorbs cancel", BookingStatusCancelled, SessionCanceled{}, BookingStatusCancelled, "", false},
		{"cancelled absorbs booked", BookingStatusCancelled, booked, BookingStatusCancelled, "", false},
		{"pending absorbs booked", BookingStatusPending, booked, BookingStatusPending, "", false},
		{"none absorbs payment", BookingStatusNone, PaymentSucceeded{}, BookingStatusNone, "", false},
		{"ignored never transitions", BookingStatusPending, Ignored{}, BookingStatusPending, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := Transition(tc.from, tc.event)
			if result.To != tc.to {
				t.Fatalf("expected %q, got %q", tc.to, result.To)
			}
			if result.Command != tc.command {
				t.Fatalf("expected command %q, got %q", tc.command, result.Command)
			}
			if result.Changed != tc.changed {
				t.Fatalf("expected changed=%v, got %v", tc.changed, result.Changed)
			}
			if !result.Changed && result.Reason == "" {
				t.Fatalf("expected an absorbed event to carry a reason")
			}
		})
	}
}

func TestTransition_PaymentAfterCancellationReason(t *testing.T) {
	result := Transition(BookingStatusCancelled, PaymentSucceeded{})
	if result.Reason != reasonPaymentAfterCancellation {
		t.Fatalf("expected %q, got %q", reasonPaymentAfterCancellation, result.Reason)
	}
}

func TestTransitionAllowed_CancelledIsAbsorbing(t *testing.T) {
	for _, kind := range []EventKind{
		EventKindSessionBooked,
		EventKindSessionCanceled,
		EventKindPaymentSucceeded,
		EventKindPaymentFailed,
	} {
		if TransitionAllowed(BookingStatusCancelled, kind) {
			t.Fatalf("expected no transition out of CANCELLED for %s", kind)
		}
	}
}

func TestParseBookingStatus(t *testing.T) {
	status, err := ParseBookingStatus(" confirmed ")
	if err != nil || status != BookingStatusConfirmed {
		t.Fatalf("expected CONFIRMED, got %q %v", status, err)
	}
	if _, err := ParseBookingStatus("archived"); err == nil {
		t.Fatalf("expected invalid status error")
	}
}
