package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/faceattend/internal/observability"
)

// Mode is the attendance action the operator requested.
type Mode int

const (
	ModeCheckIn Mode = iota
	ModeCheckOut
)

func (m Mode) String() string {
	if m == ModeCheckOut {
		return "check_out"
	}
	return "check_in"
}

// ParseMode maps the wire form ("check_in", "check_out") back to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "check_in":
		return ModeCheckIn, nil
	case "check_out":
		return ModeCheckOut, nil
	default:
		return ModeCheckIn, fmt.Errorf("unknown mode %q", s)
	}
}

// SessionState classifies a subject's current attendance situation.
type SessionState int

const (
	StateNoSession SessionState = iota
	StateOpenToday
	StateOpenPriorDay
	StateClosedToday
)

func (s SessionState) String() string {
	switch s {
	case StateOpenToday:
		return "open_today"
	case StateOpenPriorDay:
		return "open_prior_day"
	case StateClosedToday:
		return "closed_today"
	default:
		return "no_session"
	}
}

// SessionOutcome is the decision for one attendance attempt. Rejections are
// expected business outcomes, not errors.
type SessionOutcome string

const (
	OutcomeCheckedIn         SessionOutcome = "checked_in"
	OutcomeCheckedOut        SessionOutcome = "checked_out"
	OutcomeNoOpenSession     SessionOutcome = "no_open_session"
	OutcomeStalePriorSession SessionOutcome = "stale_prior_session"
	OutcomeAlreadyClosed     SessionOutcome = "already_closed_today"
)

// Accepted reports whether the outcome mutated session state.
func (o SessionOutcome) Accepted() bool {
	return o == OutcomeCheckedIn || o == OutcomeCheckedOut
}

// Session is the repository view of one attendance record.
type Session struct {
	StudentID int64
	Date      time.Time
	CheckIn   time.Time
	CheckOut  *time.Time
}

// Open reports whether the session has no check-out yet.
func (s *Session) Open() bool {
	return s != nil && s.CheckOut == nil
}

// SessionRepository is the persistent store the session machine decides
// against. Implementations return nil (not an error) when no row matches.
type SessionRepository interface {
	// OpenSession returns the subject's open session regardless of date.
	OpenSession(ctx context.Context, subjectID int64) (*Session, error)
	// SessionOn returns the subject's session for the given day, open or closed.
	SessionOn(ctx context.Context, subjectID int64, day time.Time) (*Session, error)
	// CheckIn inserts a new session with the given check-in time.
	CheckIn(ctx context.Context, subjectID int64, t time.Time) error
	// CheckOut closes the open session for the given day.
	CheckOut(ctx context.Context, subjectID int64, day time.Time, t time.Time) error
}

// TransitionEvent is the immutable record of one attendance attempt.
type TransitionEvent struct {
	ID        uuid.UUID
	SubjectID int64
	Timestamp time.Time
	From      SessionState
	Mode      Mode
	Outcome   SessionOutcome
}

// Decide is the pure transition table over (state, requested mode).
//
// A second successful recognition while today's session is open closes it
// regardless of which mode launched the camera: physically re-presenting a
// face after checking in means "I am leaving". Deliberate policy, not a bug.
func Decide(state SessionState, mode Mode) SessionOutcome {
	switch state {
	case StateNoSession:
		if mode == ModeCheckOut {
			return OutcomeNoOpenSession
		}
		return OutcomeCheckedIn
	case StateOpenToday:
		return OutcomeCheckedOut
	case StateOpenPriorDay:
		return OutcomeStalePriorSession
	default: // StateClosedToday
		return OutcomeAlreadyClosed
	}
}

// SessionMachine applies the transition table against a repository. The
// state read and the subsequent mutation run as one logical unit under the
// machine's mutex, so two concurrent recognitions of the same subject cannot
// both be told "no open session".
type SessionMachine struct {
	mu   sync.Mutex
	repo SessionRepository
}

func NewSessionMachine(repo SessionRepository) *SessionMachine {
	return &SessionMachine{repo: repo}
}

// Apply classifies the subject's state, decides, and mutates the repository
// for accepted outcomes. Every attempt, accepted or rejected, yields a
// TransitionEvent. An error means the repository failed, not a rejection.
func (m *SessionMachine) Apply(ctx context.Context, subjectID int64, now time.Time, mode Mode) (TransitionEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, err := m.classify(ctx, subjectID, now)
	if err != nil {
		return TransitionEvent{}, fmt.Errorf("classify session state: %w", err)
	}

	outcome := Decide(state, mode)

	switch outcome {
	case OutcomeCheckedIn:
		if err := m.repo.CheckIn(ctx, subjectID, now); err != nil {
			return TransitionEvent{}, fmt.Errorf("insert check-in: %w", err)
		}
	case OutcomeCheckedOut:
		if err := m.repo.CheckOut(ctx, subjectID, now, now); err != nil {
			return TransitionEvent{}, fmt.Errorf("close session: %w", err)
		}
	}

	ev := TransitionEvent{
		ID:        uuid.New(),
		SubjectID: subjectID,
		Timestamp: now,
		From:      state,
		Mode:      mode,
		Outcome:   outcome,
	}
	observability.SessionDecisions.WithLabelValues(string(outcome)).Inc()
	return ev, nil
}

func (m *SessionMachine) classify(ctx context.Context, subjectID int64, now time.Time) (SessionState, error) {
	open, err := m.repo.OpenSession(ctx, subjectID)
	if err != nil {
		return StateNoSession, err
	}
	if open != nil {
		if sameDay(open.Date, now) {
			return StateOpenToday, nil
		}
		return StateOpenPriorDay, nil
	}

	today, err := m.repo.SessionOn(ctx, subjectID, now)
	if err != nil {
		return StateNoSession, err
	}
	if today != nil {
		return StateClosedToday, nil
	}
	return StateNoSession, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
