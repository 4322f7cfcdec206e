package exam

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"quizengine/internal/db"
)

// PostgresStore keeps papers in answer_papers and answers in answers.
// Row locks on answer_papers serialize concurrent updates of one attempt.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(conn *sql.DB) *PostgresStore {
	return &PostgresStore{db: conn}
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

const paperColumns = `
	id, user_id, question_paper_id, quiz_id, course_id, attempt_number, status,
	questions, completed, current_question_id, start_time, end_time, extra_time,
	duration_minutes, pass_criteria, total_marks, allow_skip, marks_obtained,
	percent, passed, user_ip`

func scanPaper(row interface{ Scan(...interface{}) error }) (*AnswerPaper, error) {
	var (
		p         AnswerPaper
		status    string
		questions []byte
		completed []byte
		current   sql.NullInt64
		endTime   sql.NullTime
		userIP    sql.NullString
	)
	if err := row.Scan(
		&p.ID, &p.UserID, &p.QuestionPaperID, &p.QuizID, &p.CourseID, &p.AttemptNumber, &status,
		&questions, &completed, &current, &p.StartTime, &endTime, &p.ExtraTime,
		&p.Duration, &p.PassCriteria, &p.TotalMarks, &p.AllowSkip, &p.MarksObtained,
		&p.Percent, &p.Passed, &userIP,
	); err != nil {
		return nil, err
	}
	p.Status = Status(status)
	if err := json.Unmarshal(questions, &p.Questions); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}
	if len(completed) > 0 {
		if err := json.Unmarshal(completed, &p.Completed); err != nil {
			return nil, fmt.Errorf("decode completed: %w", err)
		}
	}
	p.CurrentQuestionID = current.Int64
	if endTime.Valid {
		t := endTime.Time
		p.EndTime = &t
	}
	p.UserIP = userIP.String
	return &p, nil
}

func (s *PostgresStore) loadAnswers(ctx context.Context, q queryer, p *AnswerPaper) error {
	rows, err := q.QueryContext(ctx, `
		SELECT id, question_id, value, correct, marks, error, skipped, pending, created_at, updated_at
		FROM answers
		WHERE answer_paper_id = $1
		ORDER BY created_at ASC, id ASC
	`, p.ID)
	if err != nil {
		return fmt.Errorf("query answers: %w", err)
	}
	defer rows.Close()

	p.Answers = p.Answers[:0]
	for rows.Next() {
		var (
			a       Answer
			value   []byte
			errJSON []byte
		)
		if err := rows.Scan(&a.ID, &a.QuestionID, &value, &a.Correct, &a.Marks, &errJSON,
			&a.Skipped, &a.Pending, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return fmt.Errorf("scan answer: %w", err)
		}
		a.Value = json.RawMessage(value)
		if len(errJSON) > 0 {
			_ = json.Unmarshal(errJSON, &a.Error)
		}
		p.Answers = append(p.Answers, a)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate answers: %w", err)
	}
	return nil
}

func (s *PostgresStore) LastAttempt(ctx context.Context, key AttemptKey) (*AnswerPaper, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+paperColumns+`
		FROM answer_papers
		WHERE user_id = $1 AND question_paper_id = $2 AND course_id = $3
		ORDER BY attempt_number DESC
		LIMIT 1
	`, key.UserID, key.QuestionPaperID, key.CourseID)
	p, err := scanPaper(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("load last attempt: %w", err)
	}
	if err := s.loadAnswers(ctx, s.db, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PostgresStore) CreatePaper(ctx context.Context, p *AnswerPaper) error {
	questions, err := json.Marshal(p.Questions)
	if err != nil {
		return fmt.Errorf("encode questions: %w", err)
	}
	completed, err := json.Marshal(nonNilIDs(p.Completed))
	if err != nil {
		return fmt.Errorf("encode completed: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO answer_papers (
			user_id, question_paper_id, quiz_id, course_id, attempt_number, status,
			questions, completed, current_question_id, start_time, extra_time,
			duration_minutes, pass_criteria, total_marks, allow_skip, user_ip
		) VALUES ($1,$2,$3,$4,$5,$6,$7::jsonb,$8::jsonb,NULLIF($9,0),$10,$11,$12,$13,$14,$15,NULLIF($16,''))
		RETURNING id
	`, p.UserID, p.QuestionPaperID, p.QuizID, p.CourseID, p.AttemptNumber, string(p.Status),
		questions, completed, p.CurrentQuestionID, p.StartTime, p.ExtraTime,
		p.Duration, p.PassCriteria, p.TotalMarks, p.AllowSkip, p.UserIP).Scan(&p.ID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrDuplicateAttempt
		}
		return fmt.Errorf("insert answer paper: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPaper(ctx context.Context, id int64) (*AnswerPaper, error) {
	p, err := scanPaper(s.db.QueryRowContext(ctx, `SELECT `+paperColumns+` FROM answer_papers WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("load answer paper: %w", err)
	}
	if err := s.loadAnswers(ctx, s.db, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PostgresStore) UpdatePaper(ctx context.Context, id int64, fn func(*AnswerPaper) error) (*AnswerPaper, error) {
	var out *AnswerPaper
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		p, err := scanPaper(tx.QueryRowContext(ctx, `SELECT `+paperColumns+` FROM answer_papers WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrAttemptNotFound
			}
			return fmt.Errorf("lock answer paper: %w", err)
		}
		if err := s.loadAnswers(ctx, tx, p); err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}
		for _, a := range p.dirtyAnswers() {
			if err := s.saveAnswer(ctx, tx, p.ID, a); err != nil {
				return err
			}
		}
		if err := s.savePaper(ctx, tx, p); err != nil {
			return err
		}
		p.clearDirty()
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) savePaper(ctx context.Context, q queryer, p *AnswerPaper) error {
	completed, err := json.Marshal(nonNilIDs(p.Completed))
	if err != nil {
		return fmt.Errorf("encode completed: %w", err)
	}
	var endTime interface{}
	if p.EndTime != nil {
		endTime = *p.EndTime
	}
	_, err = q.ExecContext(ctx, `
		UPDATE answer_papers
		SET status = $2,
			completed = $3::jsonb,
			current_question_id = NULLIF($4, 0),
			end_time = $5,
			extra_time = $6,
			marks_obtained = $7,
			percent = $8,
			passed = $9,
			updated_at = now()
		WHERE id = $1
	`, p.ID, string(p.Status), completed, p.CurrentQuestionID, endTime, p.ExtraTime,
		p.MarksObtained, p.Percent, p.Passed)
	if err != nil {
		return fmt.Errorf("update answer paper: %w", err)
	}
	return nil
}

// saveAnswer upserts one answer. New answers without a reserved id draw
// one from the answers sequence first.
func (s *PostgresStore) saveAnswer(ctx context.Context, q queryer, paperID int64, a *Answer) error {
	if a.ID == 0 {
		if err := q.QueryRowContext(ctx, `SELECT nextval('answers_id_seq')`).Scan(&a.ID); err != nil {
			return fmt.Errorf("reserve answer id: %w", err)
		}
	}
	errJSON, err := json.Marshal(a.Error)
	if err != nil {
		return fmt.Errorf("encode answer error: %w", err)
	}
	value := []byte(a.Value)
	if len(value) == 0 {
		value = []byte("null")
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO answers (
			id, answer_paper_id, question_id, value, correct, marks, error,
			skipped, pending, created_at, updated_at
		) VALUES ($1,$2,$3,$4::jsonb,$5,$6,$7::jsonb,$8,$9,$10,$11)
		ON CONFLICT (id) DO UPDATE SET
			value = EXCLUDED.value,
			correct = EXCLUDED.correct,
			marks = EXCLUDED.marks,
			error = EXCLUDED.error,
			skipped = EXCLUDED.skipped,
			pending = EXCLUDED.pending,
			updated_at = EXCLUDED.updated_at
	`, a.ID, paperID, a.QuestionID, value, a.Correct, a.Marks, errJSON,
		a.Skipped, a.Pending, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert answer: %w", err)
	}
	return nil
}

func (s *PostgresStore) NewAnswerID(ctx context.Context) (int64, error) {
	var id int64
	if err := s.db.QueryRowContext(ctx, `SELECT nextval('answers_id_seq')`).Scan(&id); err != nil {
		return 0, fmt.Errorf("reserve answer id: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) FindAnswer(ctx context.Context, answerID int64) (int64, error) {
	var paperID int64
	if err := s.db.QueryRowContext(ctx, `SELECT answer_paper_id FROM answers WHERE id = $1`, answerID).Scan(&paperID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrAnswerNotFound
		}
		return 0, fmt.Errorf("find answer: %w", err)
	}
	return paperID, nil
}

func (s *PostgresStore) ListPapers(ctx context.Context, f PaperFilter) ([]*AnswerPaper, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if f.QuestionPaperID != 0 {
		args = append(args, f.QuestionPaperID)
		where = append(where, fmt.Sprintf("question_paper_id = $%d", len(args)))
	}
	if f.UserID != 0 {
		args = append(args, f.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if f.CourseID != 0 {
		args = append(args, f.CourseID)
		where = append(where, fmt.Sprintf("course_id = $%d", len(args)))
	}
	if len(f.Statuses) > 0 {
		names := make([]string, 0, len(f.Statuses))
		for _, st := range f.Statuses {
			names = append(names, string(st))
		}
		args = append(args, strings.Join(names, ","))
		where = append(where, fmt.Sprintf("status = ANY(string_to_array($%d, ','))", len(args)))
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+paperColumns+`
		FROM answer_papers
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY id ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("list answer papers: %w", err)
	}
	var out []*AnswerPaper
	for rows.Next() {
		p, err := scanPaper(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan answer paper: %w", err)
		}
		out = append(out, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate answer papers: %w", err)
	}

	for _, p := range out {
		if err := s.loadAnswers(ctx, s.db, p); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *PostgresStore) PendingCodeAnswers(ctx context.Context, olderThan time.Time, limit int) ([]PendingAnswer, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.answer_paper_id, a.id, a.question_id
		FROM answers a
		JOIN questions q ON q.id = a.question_id
		WHERE a.pending = TRUE
			AND a.skipped = FALSE
			AND q.type = 'code'
			AND a.updated_at <= $1
		ORDER BY a.id ASC
		LIMIT $2
	`, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending code answers: %w", err)
	}
	defer rows.Close()

	var out []PendingAnswer
	for rows.Next() {
		var pa PendingAnswer
		if err := rows.Scan(&pa.PaperID, &pa.AnswerID, &pa.QuestionID); err != nil {
			return nil, fmt.Errorf("scan pending answer: %w", err)
		}
		out = append(out, pa)
	}
	return out, rows.Err()
}

func nonNilIDs(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
