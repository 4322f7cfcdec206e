package report

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"quizengine/internal/exam"

	"go.uber.org/zap"
)

// GradeRange maps a percentage band of a course's grading system to a
// grade. Lower is inclusive, Upper exclusive except for the top band.
type GradeRange struct {
	Lower float64 `json:"lower_limit"`
	Upper float64 `json:"upper_limit"`
	Grade string  `json:"grade"`
}

// GradeFor returns the grade whose band contains percent, or "" when no band
// does.
func GradeFor(percent float64, ranges []GradeRange) string {
	top := math.Inf(-1)
	for _, r := range ranges {
		if r.Upper > top {
			top = r.Upper
		}
	}
	for _, r := range ranges {
		if percent >= r.Lower && (percent < r.Upper || (r.Upper == top && percent == top)) {
			return r.Grade
		}
	}
	return ""
}

type CourseGrade struct {
	UserID    int64     `json:"user_id"`
	CourseID  int64     `json:"course_id"`
	Percent   float64   `json:"percent"`
	Grade     string    `json:"grade"`
	Papers    int       `json:"papers"`
	UpdatedAt time.Time `json:"updated_at"`
}

type GradeStore interface {
	Ranges(ctx context.Context, courseID int64) ([]GradeRange, error)
	SaveCourseGrade(ctx context.Context, g CourseGrade) error
}

type paperLister interface {
	ListPapers(ctx context.Context, f exam.PaperFilter) ([]*exam.AnswerPaper, error)
}

type Service struct {
	papers paperLister
	grades GradeStore
	log    *zap.Logger
	now    func() time.Time
}

func NewService(papers paperLister, grades GradeStore, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{papers: papers, grades: grades, log: log, now: time.Now}
}

var terminal = []exam.Status{exam.StatusCompleted, exam.StatusQuit}

// Refresh recomputes a user's course grade from the best finished attempt at
// each question paper of the course.
func (s *Service) Refresh(ctx context.Context, userID, courseID int64) error {
	papers, err := s.papers.ListPapers(ctx, exam.PaperFilter{UserID: userID, CourseID: courseID, Statuses: terminal})
	if err != nil {
		return fmt.Errorf("list papers: %w", err)
	}
	best := map[int64]float64{}
	for _, p := range papers {
		if cur, ok := best[p.QuestionPaperID]; !ok || p.Percent > cur {
			best[p.QuestionPaperID] = p.Percent
		}
	}
	sum := 0.0
	for _, v := range best {
		sum += v
	}
	percent := 0.0
	if len(best) > 0 {
		percent = math.Round(sum/float64(len(best))*100) / 100
	}

	ranges, err := s.grades.Ranges(ctx, courseID)
	if err != nil {
		return fmt.Errorf("load grade ranges: %w", err)
	}
	g := CourseGrade{
		UserID:    userID,
		CourseID:  courseID,
		Percent:   percent,
		Grade:     GradeFor(percent, ranges),
		Papers:    len(best),
		UpdatedAt: s.now().UTC(),
	}
	if err := s.grades.SaveCourseGrade(ctx, g); err != nil {
		return fmt.Errorf("save course grade: %w", err)
	}
	s.log.Debug("course grade refreshed", zap.Int64("user_id", userID), zap.Int64("course_id", courseID), zap.String("grade", g.Grade))
	return nil
}

type PaperSummary struct {
	QuestionPaperID int64   `json:"question_paper_id"`
	Participants    int     `json:"participants"`
	Attempts        int     `json:"attempts"`
	Passed          int     `json:"passed"`
	AverageMarks    float64 `json:"average_marks"`
	HighestMarks    float64 `json:"highest_marks"`
	LowestMarks     float64 `json:"lowest_marks"`
}

// SummaryByPaper aggregates the best finished attempt of every participant.
func (s *Service) SummaryByPaper(ctx context.Context, questionPaperID int64) (*PaperSummary, error) {
	papers, err := s.papers.ListPapers(ctx, exam.PaperFilter{QuestionPaperID: questionPaperID, Statuses: terminal})
	if err != nil {
		return nil, fmt.Errorf("list papers: %w", err)
	}
	out := &PaperSummary{QuestionPaperID: questionPaperID, Attempts: len(papers)}
	best := bestByUser(papers)
	if len(best) == 0 {
		return out, nil
	}
	out.Participants = len(best)
	out.LowestMarks = math.Inf(1)
	total := 0.0
	for _, p := range best {
		total += p.MarksObtained
		out.HighestMarks = math.Max(out.HighestMarks, p.MarksObtained)
		out.LowestMarks = math.Min(out.LowestMarks, p.MarksObtained)
		if p.Passed {
			out.Passed++
		}
	}
	out.AverageMarks = math.Round(total/float64(len(best))*100) / 100
	return out, nil
}

func bestByUser(papers []*exam.AnswerPaper) []*exam.AnswerPaper {
	byUser := map[int64]*exam.AnswerPaper{}
	for _, p := range papers {
		if cur, ok := byUser[p.UserID]; !ok || p.MarksObtained > cur.MarksObtained {
			byUser[p.UserID] = p
		}
	}
	out := make([]*exam.AnswerPaper, 0, len(byUser))
	for _, p := range byUser {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
