package exam

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	internaldb "quizengine/internal/db"
)

func openIntegrationDB(t *testing.T) *sql.DB {
	t.Helper()
	if os.Getenv("QUIZENGINE_INTEGRATION") != "1" {
		t.Skip("set QUIZENGINE_INTEGRATION=1 to run integration tests")
	}
	dsn := os.Getenv("QUIZENGINE_TEST_DSN")
	if dsn == "" {
		t.Skip("QUIZENGINE_TEST_DSN is empty")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	conn, err := internaldb.OpenPostgres(ctx, internaldb.PostgresConfig{DSN: dsn, Migrate: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	return conn
}

func mustQuestionPaper(ctx context.Context, t *testing.T, conn *sql.DB) (quizID, paperID int64) {
	t.Helper()
	if err := conn.QueryRowContext(ctx, `INSERT INTO quizzes (description) VALUES ('itest') RETURNING id`).Scan(&quizID); err != nil {
		t.Fatalf("insert quiz: %v", err)
	}
	if err := conn.QueryRowContext(ctx, `INSERT INTO question_papers (quiz_id, total_marks) VALUES ($1, 2) RETURNING id`, quizID).Scan(&paperID); err != nil {
		t.Fatalf("insert question paper: %v", err)
	}
	t.Cleanup(func() {
		_, _ = conn.ExecContext(context.Background(), `DELETE FROM answer_papers WHERE question_paper_id = $1`, paperID)
		_, _ = conn.ExecContext(context.Background(), `DELETE FROM quizzes WHERE id = $1`, quizID)
	})
	return quizID, paperID
}

func TestPostgresStore_DBIntegration_AttemptLifecycle(t *testing.T) {
	conn := openIntegrationDB(t)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	quizID, qpID := mustQuestionPaper(ctx, t, conn)
	store := NewPostgresStore(conn)
	userID := time.Now().UnixNano() % 1_000_000_000
	start := time.Now().UTC().Truncate(time.Millisecond)

	paper := &AnswerPaper{
		UserID:            userID,
		QuestionPaperID:   qpID,
		QuizID:            quizID,
		AttemptNumber:     1,
		Status:            StatusInProgress,
		Questions:         []int64{11, 12},
		CurrentQuestionID: 11,
		StartTime:         start,
		Duration:          20,
		PassCriteria:      40,
		TotalMarks:        2,
		AllowSkip:         true,
	}
	if err := store.CreatePaper(ctx, paper); err != nil {
		t.Fatalf("create paper: %v", err)
	}

	dup := *paper
	dup.ID = 0
	dup.AttemptNumber = 2
	if err := store.CreatePaper(ctx, &dup); !errors.Is(err, ErrDuplicateAttempt) {
		t.Fatalf("second live paper: expected ErrDuplicateAttempt, got %v", err)
	}

	answerID, err := store.NewAnswerID(ctx)
	if err != nil {
		t.Fatalf("new answer id: %v", err)
	}
	_, err = store.UpdatePaper(ctx, paper.ID, func(p *AnswerPaper) error {
		p.RecordAnswer(Answer{ID: answerID, QuestionID: 11, Value: json.RawMessage(`"42"`), Correct: true, Marks: 1}, false, start)
		p.AddCompletedQuestion(11)
		p.UpdateMarks()
		return nil
	})
	if err != nil {
		t.Fatalf("update paper: %v", err)
	}

	got, err := store.GetPaper(ctx, paper.ID)
	if err != nil {
		t.Fatalf("get paper: %v", err)
	}
	if len(got.Answers) != 1 || got.Answers[0].ID != answerID || !got.Answers[0].Correct {
		t.Fatalf("unexpected answers: %+v", got.Answers)
	}
	if got.MarksObtained != 1 || got.Percent != 50 {
		t.Fatalf("unexpected marks: obtained=%v percent=%v", got.MarksObtained, got.Percent)
	}
	if owner, err := store.FindAnswer(ctx, answerID); err != nil || owner != paper.ID {
		t.Fatalf("FindAnswer got=%d err=%v", owner, err)
	}

	last, err := store.LastAttempt(ctx, AttemptKey{UserID: userID, QuestionPaperID: qpID})
	if err != nil || last.ID != paper.ID {
		t.Fatalf("LastAttempt got=%+v err=%v", last, err)
	}
}
