package db

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied statement by statement; every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS grading_systems (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS grade_ranges (
		id BIGSERIAL PRIMARY KEY,
		grading_system_id BIGINT NOT NULL REFERENCES grading_systems(id) ON DELETE CASCADE,
		lower_limit DOUBLE PRECISION NOT NULL,
		upper_limit DOUBLE PRECISION NOT NULL,
		grade TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS courses (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		start_at TIMESTAMPTZ,
		end_at TIMESTAMPTZ,
		grading_system_id BIGINT REFERENCES grading_systems(id)
	)`,
	`CREATE TABLE IF NOT EXISTS enrollments (
		user_id BIGINT NOT NULL,
		course_id BIGINT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
		status TEXT NOT NULL DEFAULT 'enrolled',
		locked_reason TEXT,
		PRIMARY KEY (user_id, course_id)
	)`,
	`CREATE TABLE IF NOT EXISTS module_prerequisites (
		module_id BIGINT NOT NULL,
		prerequisite_module_id BIGINT NOT NULL,
		course_id BIGINT NOT NULL,
		PRIMARY KEY (module_id, prerequisite_module_id, course_id)
	)`,
	`CREATE TABLE IF NOT EXISTS module_completions (
		user_id BIGINT NOT NULL,
		module_id BIGINT NOT NULL,
		course_id BIGINT NOT NULL,
		completed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (user_id, module_id, course_id)
	)`,
	`CREATE TABLE IF NOT EXISTS questions (
		id BIGSERIAL PRIMARY KEY,
		summary TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		type TEXT NOT NULL,
		language TEXT NOT NULL DEFAULT 'python',
		points DOUBLE PRECISION NOT NULL DEFAULT 1,
		partial_grading BOOLEAN NOT NULL DEFAULT FALSE,
		min_time INT NOT NULL DEFAULT 0,
		snippet TEXT NOT NULL DEFAULT '',
		solution TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS test_cases (
		id BIGSERIAL PRIMARY KEY,
		question_id BIGINT NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
		kind TEXT NOT NULL,
		seq_no INT NOT NULL DEFAULT 0,
		params JSONB NOT NULL DEFAULT '{}'::jsonb
	)`,
	`CREATE INDEX IF NOT EXISTS idx_test_cases_question ON test_cases (question_id, seq_no)`,
	`CREATE TABLE IF NOT EXISTS quizzes (
		id BIGSERIAL PRIMARY KEY,
		module_id BIGINT NOT NULL DEFAULT 0,
		description TEXT NOT NULL DEFAULT '',
		duration_minutes INT NOT NULL DEFAULT 20,
		attempts_allowed INT NOT NULL DEFAULT -1,
		time_between_attempts DOUBLE PRECISION NOT NULL DEFAULT 0,
		pass_criteria DOUBLE PRECISION NOT NULL DEFAULT 40,
		allow_skip BOOLEAN NOT NULL DEFAULT TRUE,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		is_exercise BOOLEAN NOT NULL DEFAULT FALSE,
		weightage DOUBLE PRECISION NOT NULL DEFAULT 100,
		start_at TIMESTAMPTZ,
		end_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS question_papers (
		id BIGSERIAL PRIMARY KEY,
		quiz_id BIGINT NOT NULL REFERENCES quizzes(id) ON DELETE CASCADE,
		fixed_question_order TEXT,
		shuffle_questions BOOLEAN NOT NULL DEFAULT FALSE,
		total_marks DOUBLE PRECISION NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS question_paper_fixed (
		question_paper_id BIGINT NOT NULL REFERENCES question_papers(id) ON DELETE CASCADE,
		question_id BIGINT NOT NULL REFERENCES questions(id),
		PRIMARY KEY (question_paper_id, question_id)
	)`,
	`CREATE TABLE IF NOT EXISTS random_sets (
		id BIGSERIAL PRIMARY KEY,
		question_paper_id BIGINT NOT NULL REFERENCES question_papers(id) ON DELETE CASCADE,
		marks DOUBLE PRECISION NOT NULL,
		num_questions INT NOT NULL CHECK (num_questions >= 0)
	)`,
	`CREATE TABLE IF NOT EXISTS random_set_questions (
		random_set_id BIGINT NOT NULL REFERENCES random_sets(id) ON DELETE CASCADE,
		question_id BIGINT NOT NULL REFERENCES questions(id),
		PRIMARY KEY (random_set_id, question_id)
	)`,
	`CREATE TABLE IF NOT EXISTS special_attempts (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		quiz_id BIGINT NOT NULL,
		course_id BIGINT NOT NULL,
		attempts INT NOT NULL DEFAULT 1,
		expires_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS answer_papers (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		question_paper_id BIGINT NOT NULL REFERENCES question_papers(id),
		quiz_id BIGINT NOT NULL,
		course_id BIGINT NOT NULL DEFAULT 0,
		attempt_number INT NOT NULL,
		status TEXT NOT NULL,
		questions JSONB NOT NULL,
		completed JSONB NOT NULL DEFAULT '[]'::jsonb,
		current_question_id BIGINT,
		start_time TIMESTAMPTZ NOT NULL,
		end_time TIMESTAMPTZ,
		extra_time DOUBLE PRECISION NOT NULL DEFAULT 0,
		duration_minutes INT NOT NULL,
		pass_criteria DOUBLE PRECISION NOT NULL,
		total_marks DOUBLE PRECISION NOT NULL,
		allow_skip BOOLEAN NOT NULL DEFAULT TRUE,
		marks_obtained DOUBLE PRECISION NOT NULL DEFAULT 0,
		percent DOUBLE PRECISION NOT NULL DEFAULT 0,
		passed BOOLEAN NOT NULL DEFAULT FALSE,
		user_ip TEXT,
		UNIQUE (user_id, question_paper_id, course_id, attempt_number)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_answer_papers_live
		ON answer_papers (user_id, question_paper_id, course_id)
		WHERE status = 'inprogress'`,
	`CREATE INDEX IF NOT EXISTS idx_answer_papers_course_user ON answer_papers (course_id, user_id)`,
	`CREATE SEQUENCE IF NOT EXISTS answers_id_seq`,
	`CREATE TABLE IF NOT EXISTS answers (
		id BIGINT PRIMARY KEY DEFAULT nextval('answers_id_seq'),
		answer_paper_id BIGINT NOT NULL REFERENCES answer_papers(id) ON DELETE CASCADE,
		question_id BIGINT NOT NULL,
		value JSONB,
		correct BOOLEAN NOT NULL DEFAULT FALSE,
		marks DOUBLE PRECISION NOT NULL DEFAULT 0,
		error JSONB NOT NULL DEFAULT '[]'::jsonb,
		skipped BOOLEAN NOT NULL DEFAULT FALSE,
		pending BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_answers_paper ON answers (answer_paper_id)`,
	`CREATE INDEX IF NOT EXISTS idx_answers_pending ON answers (updated_at) WHERE pending AND NOT skipped`,
	`CREATE TABLE IF NOT EXISTS event_log (
		id BIGSERIAL PRIMARY KEY,
		event_type TEXT NOT NULL,
		user_id BIGINT NOT NULL DEFAULT 0,
		course_id BIGINT,
		answer_paper_id BIGINT,
		data JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS course_grades (
		user_id BIGINT NOT NULL,
		course_id BIGINT NOT NULL,
		percent DOUBLE PRECISION NOT NULL,
		grade TEXT NOT NULL DEFAULT '',
		papers INT NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (user_id, course_id)
	)`,
}

// Migrate creates the tables the engine reads and writes.
func Migrate(ctx context.Context, conn *sql.DB) error {
	for i, stmt := range schema {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
