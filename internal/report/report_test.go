package report

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"quizengine/internal/exam"

	"github.com/go-chi/chi/v5"
	"github.com/xuri/excelize/v2"
)

var letterGrades = []GradeRange{
	{Lower: 0, Upper: 40, Grade: "F"},
	{Lower: 40, Upper: 70, Grade: "B"},
	{Lower: 70, Upper: 100, Grade: "A"},
}

func TestGradeFor(t *testing.T) {
	tests := []struct {
		percent float64
		want    string
	}{
		{percent: 0, want: "F"},
		{percent: 39.99, want: "F"},
		{percent: 40, want: "B"},
		{percent: 69.5, want: "B"},
		{percent: 70, want: "A"},
		{percent: 100, want: "A"},
		{percent: 101, want: ""},
		{percent: -1, want: ""},
	}
	for _, tc := range tests {
		if got := GradeFor(tc.percent, letterGrades); got != tc.want {
			t.Fatalf("GradeFor(%v) got=%q want=%q", tc.percent, got, tc.want)
		}
	}
	if got := GradeFor(50, nil); got != "" {
		t.Fatalf("no ranges should give empty grade, got %q", got)
	}
}

type memGrades struct {
	ranges []GradeRange
	saved  []CourseGrade
}

func (m *memGrades) Ranges(context.Context, int64) ([]GradeRange, error) { return m.ranges, nil }

func (m *memGrades) SaveCourseGrade(_ context.Context, g CourseGrade) error {
	m.saved = append(m.saved, g)
	return nil
}

func seedPaper(t *testing.T, store *exam.MemoryStore, userID, qpID int64, attempt int, status exam.Status, marks float64) {
	t.Helper()
	p := &exam.AnswerPaper{
		UserID: userID, QuestionPaperID: qpID, CourseID: 3, AttemptNumber: attempt,
		Status: status, Questions: []int64{1}, TotalMarks: 10, PassCriteria: 50,
		StartTime: time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC),
		Answers:   []exam.Answer{{QuestionID: 1, Marks: marks}},
	}
	p.UpdateMarks()
	if err := store.CreatePaper(context.Background(), p); err != nil {
		t.Fatalf("create paper: %v", err)
	}
}

func TestRefreshUsesBestFinishedAttempt(t *testing.T) {
	store := exam.NewMemoryStore()
	seedPaper(t, store, 1, 10, 1, exam.StatusCompleted, 4)
	seedPaper(t, store, 1, 10, 2, exam.StatusCompleted, 9)
	seedPaper(t, store, 1, 20, 1, exam.StatusQuit, 5)
	seedPaper(t, store, 1, 30, 1, exam.StatusInProgress, 10)
	seedPaper(t, store, 2, 10, 1, exam.StatusCompleted, 1)

	grades := &memGrades{ranges: letterGrades}
	svc := NewService(store, grades, nil)
	if err := svc.Refresh(context.Background(), 1, 3); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if len(grades.saved) != 1 {
		t.Fatalf("expected one saved grade, got %d", len(grades.saved))
	}
	g := grades.saved[0]
	if g.Percent != 70 || g.Grade != "A" || g.Papers != 2 {
		t.Fatalf("unexpected course grade: %+v", g)
	}
}

func TestSummaryByPaper(t *testing.T) {
	store := exam.NewMemoryStore()
	seedPaper(t, store, 1, 10, 1, exam.StatusCompleted, 4)
	seedPaper(t, store, 1, 10, 2, exam.StatusCompleted, 8)
	seedPaper(t, store, 2, 10, 1, exam.StatusCompleted, 2)
	seedPaper(t, store, 3, 10, 1, exam.StatusInProgress, 10)

	out, err := NewService(store, &memGrades{}, nil).SummaryByPaper(context.Background(), 10)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if out.Participants != 2 || out.Attempts != 3 || out.Passed != 1 {
		t.Fatalf("unexpected summary: %+v", out)
	}
	if out.HighestMarks != 8 || out.LowestMarks != 2 || out.AverageMarks != 5 {
		t.Fatalf("unexpected marks: %+v", out)
	}
}

func TestExportMarksHandler(t *testing.T) {
	store := exam.NewMemoryStore()
	seedPaper(t, store, 1, 10, 1, exam.StatusCompleted, 4)
	seedPaper(t, store, 2, 10, 1, exam.StatusQuit, 6)
	h := NewHandler(NewService(store, &memGrades{}, nil), nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", "10")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	w := httptest.NewRecorder()

	h.ExportMarks(w, req)

	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != xlsxContentType {
		t.Fatalf("unexpected response %d %q", w.Code, w.Header().Get("Content-Type"))
	}
	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer func() { _ = f.Close() }()
	rows, err := f.GetRows(f.GetSheetList()[0])
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 3 || rows[0][1] != "user_id" || rows[2][3] != "quit" {
		t.Fatalf("unexpected rows: %v", rows)
	}
}
