// Package regrade recomputes stored marks after answer keys change and
// applies manual overrides from staff.
package regrade

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"quizengine/internal/activity"
	"quizengine/internal/exam"
	"quizengine/internal/grading"
	"quizengine/internal/question"
	"quizengine/internal/sandbox"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrInvalidScope = errors.New("question_paper_id is required")
	ErrNoAnswer     = errors.New("no answer to grade")
)

// Scope selects the papers and answers to regrade. A paper id is required;
// user and question narrow it.
type Scope struct {
	QuestionPaperID int64 `json:"question_paper_id" validate:"required,gt=0"`
	UserID          int64 `json:"user_id,omitempty" validate:"gte=0"`
	QuestionID      int64 `json:"question_id,omitempty" validate:"gte=0"`
}

type Summary struct {
	Papers  int `json:"papers"`
	Answers int `json:"answers"`
	Pending int `json:"pending"`
	Failed  int `json:"failed"`
}

type Option func(*Aggregator)

func WithConcurrency(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// WithCodeWait bounds how long a regrade waits for each code verdict. Zero
// resubmits without waiting.
func WithCodeWait(wait, interval time.Duration) Option {
	return func(a *Aggregator) {
		a.codeWait = wait
		if interval > 0 {
			a.pollInterval = interval
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.log = l
		}
	}
}

func WithEvents(sink activity.Sink) Option {
	return func(a *Aggregator) { a.events = sink }
}

func WithGradeRefresher(g exam.GradeRefresher) Option {
	return func(a *Aggregator) { a.grades = g }
}

func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

type Aggregator struct {
	store  exam.Store
	bank   question.Source
	engine *grading.Engine
	events activity.Sink
	grades exam.GradeRefresher
	log    *zap.Logger
	now    func() time.Time

	concurrency  int
	codeWait     time.Duration
	pollInterval time.Duration
}

func NewAggregator(store exam.Store, bank question.Source, engine *grading.Engine, opts ...Option) *Aggregator {
	a := &Aggregator{
		store:        store,
		bank:         bank,
		engine:       engine,
		events:       activity.Nop{},
		log:          zap.NewNop(),
		now:          time.Now,
		concurrency:  4,
		codeWait:     30 * time.Second,
		pollInterval: 500 * time.Millisecond,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Regrade re-validates every stored answer in scope and recomputes paper
// totals. Live attempts are only touched when a single user is targeted.
// Papers that fail are counted and logged; the error return is reserved for
// failures that stop the whole run.
func (a *Aggregator) Regrade(ctx context.Context, scope Scope) (Summary, error) {
	if scope.QuestionPaperID <= 0 {
		return Summary{}, ErrInvalidScope
	}
	filter := exam.PaperFilter{QuestionPaperID: scope.QuestionPaperID, UserID: scope.UserID}
	if scope.UserID == 0 {
		filter.Statuses = []exam.Status{exam.StatusCompleted, exam.StatusQuit}
	}
	papers, err := a.store.ListPapers(ctx, filter)
	if err != nil {
		return Summary{}, fmt.Errorf("list papers: %w", err)
	}

	var (
		mu  sync.Mutex
		sum Summary
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for _, p := range papers {
		g.Go(func() error {
			answers, pending, err := a.regradePaper(gctx, p, scope.QuestionID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if errors.Is(err, sandbox.ErrUnavailable) || gctx.Err() != nil {
					return err
				}
				sum.Failed++
				a.log.Warn("regrade paper", zap.Int64("answer_paper_id", p.ID), zap.Error(err))
				return nil
			}
			sum.Papers++
			sum.Answers += answers
			sum.Pending += pending
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return sum, err
	}

	a.events.Record(ctx, activity.Event{
		Type: activity.EventRegradeFinished,
		Data: map[string]interface{}{
			"question_paper_id": scope.QuestionPaperID,
			"user_id":           scope.UserID,
			"question_id":       scope.QuestionID,
			"papers":            sum.Papers,
			"answers":           sum.Answers,
			"pending":           sum.Pending,
		},
	})
	a.log.Info("regrade finished",
		zap.Int64("question_paper_id", scope.QuestionPaperID),
		zap.Int("papers", sum.Papers),
		zap.Int("answers", sum.Answers),
		zap.Int("pending", sum.Pending),
		zap.Int("failed", sum.Failed),
	)
	return sum, nil
}

type verdict struct {
	answerID int64
	res      grading.Result
}

func (a *Aggregator) regradePaper(ctx context.Context, p *exam.AnswerPaper, questionID int64) (int, int, error) {
	ids := make([]int64, 0, len(p.Questions))
	for _, qid := range p.Questions {
		if questionID == 0 || qid == questionID {
			ids = append(ids, qid)
		}
	}
	if len(ids) == 0 {
		return 0, 0, nil
	}
	questions, err := a.bank.Questions(ctx, ids)
	if err != nil {
		return 0, 0, err
	}

	var results []verdict
	pending := 0
	for _, ans := range p.Answers {
		if ans.Skipped {
			continue
		}
		q, ok := questions[ans.QuestionID]
		if !ok {
			continue
		}
		res, err := a.grade(ctx, q, ans)
		if err != nil {
			return 0, 0, err
		}
		// Upload marks only ever come from staff.
		if res.Pending && res.Reason == grading.ReasonManualGrading {
			continue
		}
		if res.Pending {
			pending++
		}
		results = append(results, verdict{answerID: ans.ID, res: res})
	}
	if len(results) == 0 {
		return 0, 0, nil
	}

	updated, err := a.store.UpdatePaper(ctx, p.ID, func(cur *exam.AnswerPaper) error {
		now := a.now()
		for _, v := range results {
			ans := cur.AnswerByID(v.answerID)
			if ans == nil {
				continue
			}
			if v.res.Pending {
				ans.SetResult(ans.Correct, ans.Marks, ans.Error, true, now)
				continue
			}
			ans.SetResult(v.res.Success, v.res.Marks, v.res.Error, false, now)
		}
		cur.UpdateMarks()
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	if updated.Status.Terminal() && a.grades != nil {
		if err := a.grades.Refresh(ctx, updated.UserID, updated.CourseID); err != nil {
			a.log.Warn("refresh course grade", zap.Int64("user_id", updated.UserID), zap.Error(err))
		}
	}
	return len(results), pending, nil
}

func (a *Aggregator) grade(ctx context.Context, q *question.Question, ans exam.Answer) (grading.Result, error) {
	if q.Type != question.TypeCode {
		return a.engine.Score(q, ans.Value), nil
	}
	res, err := a.engine.Resubmit(ctx, q, ans.Value, ans.ID)
	if err != nil || !res.Pending || a.codeWait <= 0 {
		return res, err
	}

	deadline := time.NewTimer(a.codeWait)
	defer deadline.Stop()
	tick := time.NewTicker(a.pollInterval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return grading.Result{}, ctx.Err()
		case <-deadline.C:
			return res, nil
		case <-tick.C:
			polled, done, err := a.engine.Poll(ctx, q, ans.ID)
			if err != nil {
				return grading.Result{}, err
			}
			if done {
				return polled, nil
			}
		}
	}
}
