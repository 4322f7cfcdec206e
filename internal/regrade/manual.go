package regrade

import (
	"context"
	"fmt"
	"math"

	"quizengine/internal/activity"
	"quizengine/internal/exam"

	"go.uber.org/zap"
)

type ManualGradeInput struct {
	PaperID    int64   `json:"-"`
	QuestionID int64   `json:"-"`
	Marks      float64 `json:"marks" validate:"gte=0"`
	Comment    string  `json:"comment" validate:"max=2000"`
	GradedBy   int64   `json:"-"`
}

// ManualGrade overrides the marks a question contributes to the paper,
// whatever earlier submissions scored. Marks are clamped to the question's
// points.
func (a *Aggregator) ManualGrade(ctx context.Context, in ManualGradeInput) (*exam.AnswerPaper, error) {
	q, err := a.bank.Question(ctx, in.QuestionID)
	if err != nil {
		return nil, err
	}
	marks := clampMarks(in.Marks, q.Points)

	p, err := a.store.UpdatePaper(ctx, in.PaperID, func(p *exam.AnswerPaper) error {
		if !p.HasQuestion(in.QuestionID) {
			return exam.ErrQuestionNotInPaper
		}
		if p.OverrideMarks(in.QuestionID, marks, marks >= q.Points, a.now()) == nil {
			return ErrNoAnswer
		}
		p.UpdateMarks()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("manual grade: %w", err)
	}

	a.events.Record(ctx, activity.Event{
		Type:          activity.EventManualGrade,
		UserID:        in.GradedBy,
		CourseID:      p.CourseID,
		AnswerPaperID: p.ID,
		Data: map[string]interface{}{
			"question_id": in.QuestionID,
			"marks":       marks,
			"comment":     in.Comment,
		},
	})
	if p.Status.Terminal() && a.grades != nil {
		if err := a.grades.Refresh(ctx, p.UserID, p.CourseID); err != nil {
			a.log.Warn("refresh course grade", zap.Int64("user_id", p.UserID), zap.Error(err))
		}
	}
	return p, nil
}

func clampMarks(marks, points float64) float64 {
	if math.IsNaN(marks) || marks < 0 {
		return 0
	}
	if marks > points {
		return points
	}
	return math.Round(marks*1e4) / 1e4
}
