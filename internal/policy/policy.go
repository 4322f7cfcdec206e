// Package policy answers the course-level questions asked before an attempt
// starts: enrollment, course availability, module prerequisites and extra
// attempts granted to a user.
package policy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Checker is consulted by the attempt service before a new paper is created.
type Checker interface {
	IsEnrolled(ctx context.Context, userID, courseID int64) (bool, error)
	// CanAttemptNow reports whether the course is open to the user, with a
	// human readable reason when it is not.
	CanAttemptNow(ctx context.Context, userID, courseID int64) (bool, string, error)
	PrerequisiteSatisfied(ctx context.Context, userID, moduleID, courseID int64) (bool, error)
	// SpecialAttempts is the number of extra attempts granted on a quiz.
	SpecialAttempts(ctx context.Context, userID, quizID, courseID int64) (int, error)
}

// SQLChecker reads enrollment and prerequisite data from Postgres.
type SQLChecker struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLChecker(db *sql.DB) *SQLChecker {
	return &SQLChecker{db: db, now: time.Now}
}

func (c *SQLChecker) IsEnrolled(ctx context.Context, userID, courseID int64) (bool, error) {
	var ok bool
	if err := c.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM enrollments
			WHERE user_id = $1 AND course_id = $2 AND status = 'enrolled'
		)
	`, userID, courseID).Scan(&ok); err != nil {
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return ok, nil
}

func (c *SQLChecker) CanAttemptNow(ctx context.Context, userID, courseID int64) (bool, string, error) {
	var (
		active   bool
		startAt  sql.NullTime
		endAt    sql.NullTime
		lockedBy sql.NullString
	)
	err := c.db.QueryRowContext(ctx, `
		SELECT c.active, c.start_at, c.end_at, e.locked_reason
		FROM courses c
		LEFT JOIN enrollments e ON e.course_id = c.id AND e.user_id = $1
		WHERE c.id = $2
	`, userID, courseID).Scan(&active, &startAt, &endAt, &lockedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, "Course does not exist", nil
		}
		return false, "", fmt.Errorf("load course window: %w", err)
	}
	return courseOpen(c.now(), active, startAt, endAt, lockedBy.String)
}

func courseOpen(now time.Time, active bool, startAt, endAt sql.NullTime, locked string) (bool, string, error) {
	switch {
	case !active:
		return false, "Course is not active", nil
	case startAt.Valid && now.Before(startAt.Time):
		return false, "Course has not started yet", nil
	case endAt.Valid && now.After(endAt.Time):
		return false, "Course has ended", nil
	case locked != "":
		return false, locked, nil
	}
	return true, "", nil
}

// PrerequisiteSatisfied is true when every prerequisite module of moduleID
// in the course has been completed by the user.
func (c *SQLChecker) PrerequisiteSatisfied(ctx context.Context, userID, moduleID, courseID int64) (bool, error) {
	if moduleID == 0 {
		return true, nil
	}
	var missing int
	if err := c.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM module_prerequisites mp
		LEFT JOIN module_completions mc
			ON mc.module_id = mp.prerequisite_module_id
			AND mc.course_id = mp.course_id
			AND mc.user_id = $1
		WHERE mp.module_id = $2 AND mp.course_id = $3 AND mc.user_id IS NULL
	`, userID, moduleID, courseID).Scan(&missing); err != nil {
		return false, fmt.Errorf("check prerequisites: %w", err)
	}
	return missing == 0, nil
}

func (c *SQLChecker) SpecialAttempts(ctx context.Context, userID, quizID, courseID int64) (int, error) {
	var n sql.NullInt64
	if err := c.db.QueryRowContext(ctx, `
		SELECT SUM(attempts)
		FROM special_attempts
		WHERE user_id = $1 AND quiz_id = $2 AND course_id = $3
			AND (expires_at IS NULL OR expires_at > now())
	`, userID, quizID, courseID).Scan(&n); err != nil {
		return 0, fmt.Errorf("load special attempts: %w", err)
	}
	return int(n.Int64), nil
}

// Static is a fixed-answer Checker for tests and single-course setups.
type Static struct {
	Enrolled     bool
	Open         bool
	Reason       string
	Prerequisite bool
	Extra        int
}

// AllowAll admits everyone.
func AllowAll() *Static {
	return &Static{Enrolled: true, Open: true, Prerequisite: true}
}

func (s *Static) IsEnrolled(context.Context, int64, int64) (bool, error) {
	return s.Enrolled, nil
}

func (s *Static) CanAttemptNow(context.Context, int64, int64) (bool, string, error) {
	return s.Open, s.Reason, nil
}

func (s *Static) PrerequisiteSatisfied(context.Context, int64, int64, int64) (bool, error) {
	return s.Prerequisite, nil
}

func (s *Static) SpecialAttempts(context.Context, int64, int64, int64) (int, error) {
	return s.Extra, nil
}
