package model

import (
	"testing"
)

func TestBookingTransitions(t *testing.T) {
	cases := []struct {
		from    string
		to      string
		allowed bool
	}{
		{BookingStatusPending, BookingStatusConfirmed, true},
		{BookingStatusPending, BookingStatusCancelled, true},
		{BookingStatusPending, BookingStatusInProgress, false},
		{BookingStatusPending, BookingStatusCompleted, false},
		{BookingStatusConfirmed, BookingStatusInProgress, true},
		{BookingStatusConfirmed, BookingStatusCancelled, true},
		{BookingStatusConfirmed, BookingStatusCompleted, false},
		{BookingStatusInProgress, BookingStatusCompleted, true},
		{BookingStatusInProgress, BookingStatusCancelled, true},
		{BookingStatusInProgress, BookingStatusConfirmed, false},
		{BookingStatusCompleted, BookingStatusReviewed, true},
		{BookingStatusCompleted, BookingStatusCancelled, false},
		{BookingStatusCancelled, BookingStatusPending, false},
		{BookingStatusCancelled, BookingStatusConfirmed, false},
		{BookingStatusReviewed, BookingStatusCompleted, false},
		{BookingStatusReviewed, BookingStatusCancelled, false},
	}

	for _, c := range cases {
		if got := CanTransitionTo(c.from, c.to); got != c.allowed {
			t.Errorf("CanTransitionTo(%s, %s) = %v, want %v", c.from, c.to, got, c.allowed)
		}
	}
}

func TestTerminalStatusesHaveNoOutgoingEdges(t *testing.T) {
	for _, status := range []string{BookingStatusCancelled, BookingStatusReviewed} {
		if edges, ok := ValidBookingTransitions[status]; ok && len(edges) > 0 {
			t.Errorf("终态 %s 不应有出边: %v", status, edges)
		}
	}
}

func TestPayoutTransitions(t *testing.T) {
	cases := []struct {
		from    string
		to      string
		allowed bool
	}{
		{PayoutStatusRequested, PayoutStatusApproved, true},
		{PayoutStatusRequested, PayoutStatusRejected, true},
		{PayoutStatusRequested, PayoutStatusPaid, false},
		{PayoutStatusApproved, PayoutStatusPaid, true},
		{PayoutStatusApproved, PayoutStatusRejected, false},
		{PayoutStatusRejected, PayoutStatusApproved, false},
		{PayoutStatusPaid, PayoutStatusApproved, false},
	}

	for _, c := range cases {
		if got := CanPayoutTransitionTo(c.from, c.to); got != c.allowed {
			t.Errorf("CanPayoutTransitionTo(%s, %s) = %v, want %v", c.from, c.to, got, c.allowed)
		}
	}
}
