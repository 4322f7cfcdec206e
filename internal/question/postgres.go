package question

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// PostgresBank reads authored questions and papers. Authoring itself
// happens elsewhere; this type never writes.
type PostgresBank struct {
	db *sql.DB
}

func NewPostgresBank(db *sql.DB) *PostgresBank {
	return &PostgresBank{db: db}
}

func (b *PostgresBank) Question(ctx context.Context, id int64) (*Question, error) {
	out, err := b.Questions(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	return out[id], nil
}

func (b *PostgresBank) Questions(ctx context.Context, ids []int64) (map[int64]*Question, error) {
	out := make(map[int64]*Question, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := b.db.QueryContext(ctx, `
		SELECT id, summary, description, type, language, points,
			partial_grading, min_time, snippet, solution, active
		FROM questions
		WHERE id = ANY(string_to_array($1, ',')::bigint[])
	`, joinIDs(ids))
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			q    Question
			qt   string
			lang sql.NullString
		)
		if err := rows.Scan(&q.ID, &q.Summary, &q.Description, &qt, &lang, &q.Points,
			&q.PartialGrading, &q.MinTime, &q.Snippet, &q.Solution, &q.Active); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		q.Type = Type(qt)
		q.Language = DefaultLanguage
		if lang.Valid && strings.TrimSpace(lang.String) != "" {
			q.Language = lang.String
		}
		out[q.ID] = &q
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	if len(out) != len(uniqueIDs(ids)) {
		return nil, ErrQuestionNotFound
	}

	if err := b.loadTestCases(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *PostgresBank) loadTestCases(ctx context.Context, questions map[int64]*Question) error {
	ids := make([]int64, 0, len(questions))
	for id := range questions {
		ids = append(ids, id)
	}
	rows, err := b.db.QueryContext(ctx, `
		SELECT id, question_id, kind, params
		FROM test_cases
		WHERE question_id = ANY(string_to_array($1, ',')::bigint[])
		ORDER BY question_id, seq_no, id
	`, joinIDs(ids))
	if err != nil {
		return fmt.Errorf("query test cases: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id, questionID int64
			kind           string
			params         []byte
		)
		if err := rows.Scan(&id, &questionID, &kind, &params); err != nil {
			return fmt.Errorf("scan test case: %w", err)
		}
		tc, err := DecodeTestCase(id, Kind(kind), params)
		if err != nil {
			return err
		}
		q := questions[questionID]
		q.TestCases = append(q.TestCases, tc)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate test cases: %w", err)
	}
	return nil
}

func (b *PostgresBank) Paper(ctx context.Context, id int64) (*Paper, error) {
	p := &Paper{ID: id}
	var order sql.NullString
	err := b.db.QueryRowContext(ctx, `
		SELECT quiz_id, fixed_question_order, shuffle_questions, total_marks
		FROM question_papers
		WHERE id = $1
	`, id).Scan(&p.QuizID, &order, &p.ShuffleQuestions, &p.TotalMarks)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaperNotFound
		}
		return nil, fmt.Errorf("load question paper: %w", err)
	}
	p.FixedQuestionOrder = order.String

	fixed, err := b.db.QueryContext(ctx, `
		SELECT question_id
		FROM question_paper_fixed
		WHERE question_paper_id = $1
		ORDER BY question_id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query fixed questions: %w", err)
	}
	defer fixed.Close()
	for fixed.Next() {
		var qid int64
		if err := fixed.Scan(&qid); err != nil {
			return nil, fmt.Errorf("scan fixed question: %w", err)
		}
		p.FixedQuestionIDs = append(p.FixedQuestionIDs, qid)
	}
	if err := fixed.Err(); err != nil {
		return nil, fmt.Errorf("iterate fixed questions: %w", err)
	}

	sets, err := b.db.QueryContext(ctx, `
		SELECT rs.id, rs.marks, rs.num_questions,
			COALESCE(string_agg(rsq.question_id::text, ',' ORDER BY rsq.question_id), '')
		FROM random_sets rs
		LEFT JOIN random_set_questions rsq ON rsq.random_set_id = rs.id
		WHERE rs.question_paper_id = $1
		GROUP BY rs.id, rs.marks, rs.num_questions
		ORDER BY rs.id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query random sets: %w", err)
	}
	defer sets.Close()
	for sets.Next() {
		var (
			s   RandomSet
			ids string
		)
		if err := sets.Scan(&s.ID, &s.Marks, &s.NumQuestions, &ids); err != nil {
			return nil, fmt.Errorf("scan random set: %w", err)
		}
		s.QuestionIDs = parseOrder(ids)
		p.RandomSets = append(p.RandomSets, s)
	}
	if err := sets.Err(); err != nil {
		return nil, fmt.Errorf("iterate random sets: %w", err)
	}
	return p, nil
}

func (b *PostgresBank) Quiz(ctx context.Context, id int64) (*Quiz, error) {
	q := &Quiz{ID: id}
	var startAt, endAt sql.NullTime
	err := b.db.QueryRowContext(ctx, `
		SELECT module_id, description, duration_minutes, attempts_allowed, time_between_attempts,
			pass_criteria, allow_skip, active, is_exercise, weightage, start_at, end_at
		FROM quizzes
		WHERE id = $1
	`, id).Scan(&q.ModuleID, &q.Description, &q.Duration, &q.AttemptsAllowed, &q.TimeBetweenAttempts,
		&q.PassCriteria, &q.AllowSkip, &q.Active, &q.IsExercise, &q.Weightage, &startAt, &endAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("load quiz: %w", err)
	}
	q.StartAt = nullTimePtr(startAt)
	q.EndAt = nullTimePtr(endAt)
	return q, nil
}

func nullTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

func joinIDs(ids []int64) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return strings.Join(parts, ",")
}

func uniqueIDs(ids []int64) map[int64]struct{} {
	out := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}
