// Package activity records attempt lifecycle events for streak and badge
// consumers. Recording never blocks or fails the caller.
package activity

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

const (
	EventAttemptStarted   = "attempt_started"
	EventAnswerChecked    = "answer_checked"
	EventAttemptCompleted = "attempt_completed"
	EventAttemptQuit      = "attempt_quit"
	EventRegradeFinished  = "regrade_finished"
	EventManualGrade      = "manual_grade"
)

type Event struct {
	Type          string                 `json:"type"`
	UserID        int64                  `json:"user_id"`
	CourseID      int64                  `json:"course_id,omitempty"`
	AnswerPaperID int64                  `json:"answer_paper_id,omitempty"`
	Data          map[string]interface{} `json:"data,omitempty"`
	At            time.Time              `json:"at"`
}

type Sink interface {
	Record(ctx context.Context, ev Event)
}

type Nop struct{}

func (Nop) Record(context.Context, Event) {}

// PostgresSink appends events to event_log on a background goroutine.
type PostgresSink struct {
	db     *sql.DB
	log    *zap.Logger
	tmo    time.Duration
	insert func(ctx context.Context, ev Event) error
}

func NewPostgresSink(db *sql.DB, log *zap.Logger) *PostgresSink {
	if log == nil {
		log = zap.NewNop()
	}
	s := &PostgresSink{db: db, log: log, tmo: 5 * time.Second}
	s.insert = s.insertRow
	return s
}

func (s *PostgresSink) Record(ctx context.Context, ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	base := context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(base, s.tmo)
		defer cancel()
		if err := s.insert(ctx, ev); err != nil {
			s.log.Warn("record activity event",
				zap.String("type", ev.Type),
				zap.Int64("user_id", ev.UserID),
				zap.Error(err),
			)
		}
	}()
}

func (s *PostgresSink) insertRow(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO event_log (event_type, user_id, course_id, answer_paper_id, data, created_at)
		VALUES ($1, $2, NULLIF($3, 0), NULLIF($4, 0), $5::jsonb, $6)
	`, ev.Type, ev.UserID, ev.CourseID, ev.AnswerPaperID, data, ev.At)
	return err
}

// Recorder keeps events in memory.
type Recorder struct {
	ch chan Event
}

func NewRecorder(size int) *Recorder {
	return &Recorder{ch: make(chan Event, size)}
}

func (r *Recorder) Record(_ context.Context, ev Event) {
	select {
	case r.ch <- ev:
	default:
	}
}

// Events drains what has been recorded so far.
func (r *Recorder) Events() []Event {
	var out []Event
	for {
		select {
		case ev := <-r.ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}
