package engine

import (
	"context"
	"testing"
	"time"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name  string
		state SessionState
		mode  Mode
		want  SessionOutcome
	}{
		{"no session check-in opens", StateNoSession, ModeCheckIn, OutcomeCheckedIn},
		{"no session check-out rejected", StateNoSession, ModeCheckOut, OutcomeNoOpenSession},
		{"open today check-out closes", StateOpenToday, ModeCheckOut, OutcomeCheckedOut},
		{"open today check-in auto-corrects to check-out", StateOpenToday, ModeCheckIn, OutcomeCheckedOut},
		{"stale prior day blocks check-in", StateOpenPriorDay, ModeCheckIn, OutcomeStalePriorSession},
		{"stale prior day blocks check-out", StateOpenPriorDay, ModeCheckOut, OutcomeStalePriorSession},
		{"closed today blocks check-in", StateClosedToday, ModeCheckIn, OutcomeAlreadyClosed},
		{"closed today blocks check-out", StateClosedToday, ModeCheckOut, OutcomeAlreadyClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Decide(tt.state, tt.mode); got != tt.want {
				t.Errorf("Decide(%v, %v) = %v, want %v", tt.state, tt.mode, got, tt.want)
			}
		})
	}
}

func TestDecideOutcomeAccepted(t *testing.T) {
	accepted := map[SessionOutcome]bool{
		OutcomeCheckedIn:         true,
		OutcomeCheckedOut:        true,
		OutcomeNoOpenSession:     false,
		OutcomeStalePriorSession: false,
		OutcomeAlreadyClosed:     false,
	}
	for outcome, want := range accepted {
		if got := outcome.Accepted(); got != want {
			t.Errorf("%s.Accepted() = %v, want %v", outcome, got, want)
		}
	}
}

func TestSessionMachineDayLifecycle(t *testing.T) {
	repo := &memRepo{}
	m := NewSessionMachine(repo)
	ctx := context.Background()
	now := time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)

	// First recognition of the day opens a session.
	ev, err := m.Apply(ctx, 42, now, ModeCheckIn)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if ev.Outcome != OutcomeCheckedIn || ev.From != StateNoSession {
		t.Fatalf("got outcome %s from %s, want checked_in from no_session", ev.Outcome, ev.From)
	}

	// A second check-in attempt closes the open session instead of failing.
	ev, err = m.Apply(ctx, 42, now.Add(4*time.Hour), ModeCheckIn)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if ev.Outcome != OutcomeCheckedOut || ev.From != StateOpenToday {
		t.Fatalf("got outcome %s from %s, want checked_out from open_today", ev.Outcome, ev.From)
	}

	// Every further attempt today is rejected without touching the row.
	for _, mode := range []Mode{ModeCheckIn, ModeCheckOut} {
		ev, err = m.Apply(ctx, 42, now.Add(6*time.Hour), mode)
		if err != nil {
			t.Fatalf("Apply(%v): %v", mode, err)
		}
		if ev.Outcome != OutcomeAlreadyClosed {
			t.Fatalf("mode %v: got outcome %s, want already_closed_today", mode, ev.Outcome)
		}
	}

	rows := repo.rows()
	if len(rows) != 1 {
		t.Fatalf("got %d session rows, want exactly 1", len(rows))
	}
	if rows[0].CheckOut == nil {
		t.Fatal("session row still open after check-out")
	}
}

func TestSessionMachineStalePriorDay(t *testing.T) {
	repo := &memRepo{}
	yesterday := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	repo.sessions = append(repo.sessions, Session{StudentID: 7, Date: yesterday, CheckIn: yesterday})

	m := NewSessionMachine(repo)
	today := yesterday.Add(24 * time.Hour)

	for _, mode := range []Mode{ModeCheckIn, ModeCheckOut} {
		ev, err := m.Apply(context.Background(), 7, today, mode)
		if err != nil {
			t.Fatalf("Apply(%v): %v", mode, err)
		}
		if ev.Outcome != OutcomeStalePriorSession || ev.From != StateOpenPriorDay {
			t.Fatalf("mode %v: got outcome %s from %s, want stale_prior_session from open_prior_day", mode, ev.Outcome, ev.From)
		}
	}

	// The stale row is untouched: no auto-close, no new rows.
	rows := repo.rows()
	if len(rows) != 1 {
		t.Fatalf("got %d session rows, want 1", len(rows))
	}
	if rows[0].CheckOut != nil {
		t.Fatal("stale prior-day session was closed; must be left for manual correction")
	}
}

func TestSessionMachineCheckOutWithoutSession(t *testing.T) {
	repo := &memRepo{}
	m := NewSessionMachine(repo)
	now := time.Date(2024, 3, 11, 17, 0, 0, 0, time.UTC)

	ev, err := m.Apply(context.Background(), 5, now, ModeCheckOut)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if ev.Outcome != OutcomeNoOpenSession {
		t.Fatalf("got outcome %s, want no_open_session", ev.Outcome)
	}
	if len(repo.rows()) != 0 {
		t.Fatal("rejected check-out must not create a session row")
	}
}

func TestSessionMachineIndependentSubjects(t *testing.T) {
	repo := &memRepo{}
	m := NewSessionMachine(repo)
	ctx := context.Background()
	now := time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)

	for _, id := range []int64{1, 2, 3} {
		ev, err := m.Apply(ctx, id, now, ModeCheckIn)
		if err != nil {
			t.Fatalf("Apply(%d): %v", id, err)
		}
		if ev.Outcome != OutcomeCheckedIn {
			t.Fatalf("subject %d: got %s, want checked_in", id, ev.Outcome)
		}
	}

	// Closing one subject's session leaves the others open.
	if _, err := m.Apply(ctx, 2, now.Add(time.Hour), ModeCheckOut); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	open := 0
	for _, s := range repo.rows() {
		if s.CheckOut == nil {
			open++
		}
	}
	if open != 2 {
		t.Fatalf("got %d open sessions, want 2", open)
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode("check_in"); err != nil || m != ModeCheckIn {
		t.Errorf("ParseMode(check_in) = %v, %v", m, err)
	}
	if m, err := ParseMode("check_out"); err != nil || m != ModeCheckOut {
		t.Errorf("ParseMode(check_out) = %v, %v", m, err)
	}
	if _, err := ParseMode("lunch"); err == nil {
		t.Error("ParseMode(lunch) should fail")
	}
}
