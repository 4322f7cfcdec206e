package exam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"quizengine/internal/activity"
	"quizengine/internal/grading"
	"quizengine/internal/policy"
	"quizengine/internal/question"
	"quizengine/internal/sandbox"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	ErrAttemptForbidden   = errors.New("attempt forbidden")
	ErrQuestionNotInPaper = errors.New("question not in answer paper")
	ErrNotInProgress      = errors.New("attempt is not in progress")
	ErrTimeUp             = errors.New("time up")
	ErrSkipNotAllowed     = errors.New("skipping is not allowed for this quiz")
	ErrEmptyPaper         = errors.New("question paper has no questions")
	ErrInvalidInput       = errors.New("invalid input")
)

// PolicyError is an eligibility refusal with a message meant for the user.
type PolicyError struct {
	Reason string
}

func (e *PolicyError) Error() string {
	return e.Reason
}

const (
	StartStarted = "started"
	StartResumed = "resumed"

	ResultDone    = "done"
	ResultPending = "pending"
)

// startTimeout bounds a shared Start call once it is detached from the
// caller that led it.
const startTimeout = 30 * time.Second

// GradeRefresher recomputes derived course grades after marks change.
type GradeRefresher interface {
	Refresh(ctx context.Context, userID, courseID int64) error
}

type Service struct {
	store  Store
	bank   question.Source
	engine *grading.Engine
	policy policy.Checker
	events activity.Sink
	grades GradeRefresher
	log    *zap.Logger
	tracer trace.Tracer
	now    func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand

	starts singleflight.Group
}

type Option func(*Service)

func WithPolicy(c policy.Checker) Option {
	return func(s *Service) { s.policy = c }
}

func WithEvents(sink activity.Sink) Option {
	return func(s *Service) { s.events = sink }
}

func WithGradeRefresher(g GradeRefresher) Option {
	return func(s *Service) { s.grades = g }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithRand(r *rand.Rand) Option {
	return func(s *Service) { s.rng = r }
}

func NewService(store Store, bank question.Source, engine *grading.Engine, opts ...Option) *Service {
	s := &Service{
		store:  store,
		bank:   bank,
		engine: engine,
		policy: policy.AllowAll(),
		events: activity.Nop{},
		log:    zap.NewNop(),
		tracer: otel.Tracer("quizengine/exam"),
		now:    time.Now,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

type StartInput struct {
	UserID          int64
	QuestionPaperID int64
	CourseID        int64
	IP              string
}

type StartResult struct {
	Status          string       `json:"status"`
	Paper           *AnswerPaper `json:"answerpaper"`
	CurrentQuestion int64        `json:"current_question"`
	TimeLeft        float64      `json:"time_left"`
}

// Start resumes the user's live attempt or creates a new one. Concurrent
// identical requests in this process share one call; across processes the
// store's uniqueness constraint picks the winner.
func (s *Service) Start(ctx context.Context, in StartInput) (*StartResult, error) {
	if in.UserID <= 0 || in.QuestionPaperID <= 0 {
		return nil, ErrInvalidInput
	}
	key := fmt.Sprintf("%d:%d:%d", in.UserID, in.QuestionPaperID, in.CourseID)
	v, err, _ := s.starts.Do(key, func() (interface{}, error) {
		// Followers share this call, so one caller hanging up must not
		// fail the rest.
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), startTimeout)
		defer cancel()
		return s.start(sctx, in)
	})
	if err != nil {
		AttemptsStarted.WithLabelValues("rejected").Inc()
		return nil, err
	}
	res := *v.(*StartResult)
	res.Paper = res.Paper.Clone()
	return &res, nil
}

func (s *Service) start(ctx context.Context, in StartInput) (*StartResult, error) {
	ctx, span := s.tracer.Start(ctx, "exam.Start", trace.WithAttributes(
		attribute.Int64("user.id", in.UserID),
		attribute.Int64("question_paper.id", in.QuestionPaperID),
	))
	defer span.End()

	qp, err := s.bank.Paper(ctx, in.QuestionPaperID)
	if err != nil {
		return nil, err
	}
	quiz, err := s.bank.Quiz(ctx, qp.QuizID)
	if err != nil {
		return nil, err
	}

	key := AttemptKey{UserID: in.UserID, QuestionPaperID: in.QuestionPaperID, CourseID: in.CourseID}
	last, err := s.store.LastAttempt(ctx, key)
	if err != nil && !errors.Is(err, ErrAttemptNotFound) {
		return nil, fmt.Errorf("load last attempt: %w", err)
	}

	now := s.now()
	if last != nil && last.Status == StatusInProgress {
		if last.IsAttemptInProgress(now) {
			AttemptsStarted.WithLabelValues(StartResumed).Inc()
			return s.startResult(StartResumed, last, now), nil
		}
		if last, err = s.finish(ctx, last.ID, "time_up"); err != nil {
			return nil, err
		}
	}

	if err := s.checkEligibility(ctx, in, quiz, last, now); err != nil {
		return nil, err
	}

	s.rngMu.Lock()
	questions := qp.Compose(s.rng)
	s.rngMu.Unlock()
	if len(questions) == 0 {
		return nil, ErrEmptyPaper
	}

	attemptNo := 1
	if last != nil {
		attemptNo = last.AttemptNumber + 1
	}
	paper := &AnswerPaper{
		UserID:            in.UserID,
		QuestionPaperID:   qp.ID,
		QuizID:            quiz.ID,
		CourseID:          in.CourseID,
		AttemptNumber:     attemptNo,
		Status:            StatusInProgress,
		Questions:         questions,
		CurrentQuestionID: questions[0],
		StartTime:         now.UTC(),
		Duration:          quiz.Duration,
		PassCriteria:      quiz.PassCriteria,
		TotalMarks:        qp.TotalMarks,
		AllowSkip:         quiz.AllowSkip,
		UserIP:            in.IP,
	}
	if err := s.store.CreatePaper(ctx, paper); err != nil {
		if !errors.Is(err, ErrDuplicateAttempt) {
			return nil, fmt.Errorf("create answer paper: %w", err)
		}
		winner, lerr := s.store.LastAttempt(ctx, key)
		if lerr != nil {
			return nil, fmt.Errorf("load winning attempt: %w", lerr)
		}
		if winner.Status != StatusInProgress {
			return nil, err
		}
		s.log.Info("attempt start raced, returning existing paper",
			zap.Int64("answer_paper_id", winner.ID), zap.Int64("user_id", in.UserID))
		AttemptsStarted.WithLabelValues(StartResumed).Inc()
		return s.startResult(StartResumed, winner, now), nil
	}

	AttemptsStarted.WithLabelValues(StartStarted).Inc()
	s.events.Record(ctx, activity.Event{
		Type:          activity.EventAttemptStarted,
		UserID:        in.UserID,
		CourseID:      in.CourseID,
		AnswerPaperID: paper.ID,
		Data:          map[string]interface{}{"quiz_id": quiz.ID, "attempt_number": attemptNo},
	})
	s.log.Info("attempt started",
		zap.Int64("answer_paper_id", paper.ID),
		zap.Int64("user_id", in.UserID),
		zap.Int("attempt_number", attemptNo),
	)
	return s.startResult(StartStarted, paper, now), nil
}

func (s *Service) startResult(status string, p *AnswerPaper, now time.Time) *StartResult {
	return &StartResult{
		Status:          status,
		Paper:           p,
		CurrentQuestion: p.CurrentQuestion(),
		TimeLeft:        p.TimeLeft(now),
	}
}

func (s *Service) checkEligibility(ctx context.Context, in StartInput, quiz *question.Quiz, last *AnswerPaper, now time.Time) error {
	if !quiz.OpenAt(now) {
		return &PolicyError{Reason: "Quiz is not active"}
	}
	enrolled, err := s.policy.IsEnrolled(ctx, in.UserID, in.CourseID)
	if err != nil {
		return fmt.Errorf("check enrollment: %w", err)
	}
	if !enrolled {
		return &PolicyError{Reason: "You are not enrolled in this course"}
	}
	ok, reason, err := s.policy.CanAttemptNow(ctx, in.UserID, in.CourseID)
	if err != nil {
		return fmt.Errorf("check course window: %w", err)
	}
	if !ok {
		if reason == "" {
			reason = "You cannot attempt this quiz now"
		}
		return &PolicyError{Reason: reason}
	}
	ok, err = s.policy.PrerequisiteSatisfied(ctx, in.UserID, quiz.ModuleID, in.CourseID)
	if err != nil {
		return fmt.Errorf("check prerequisites: %w", err)
	}
	if !ok {
		return &PolicyError{Reason: "You have not completed the previous module"}
	}

	if quiz.IsExercise || last == nil {
		return nil
	}
	if quiz.AttemptsAllowed > 0 {
		extra, err := s.policy.SpecialAttempts(ctx, in.UserID, quiz.ID, in.CourseID)
		if err != nil {
			return fmt.Errorf("load special attempts: %w", err)
		}
		if last.AttemptNumber >= quiz.AttemptsAllowed+extra {
			return &PolicyError{Reason: "You have exhausted all attempts for this quiz"}
		}
	}
	if gap := quiz.Cooldown(); gap > 0 {
		ref := last.StartTime
		if last.EndTime != nil {
			ref = *last.EndTime
		}
		if now.Before(ref.Add(gap)) {
			return &PolicyError{Reason: fmt.Sprintf("You can attempt this quiz again after %s", ref.Add(gap).UTC().Format(time.RFC3339))}
		}
	}
	return nil
}

// loadOwned fetches a paper. userID zero skips the ownership check and is
// reserved for staff callers.
func (s *Service) loadOwned(ctx context.Context, paperID, userID int64) (*AnswerPaper, error) {
	p, err := s.store.GetPaper(ctx, paperID)
	if err != nil {
		return nil, err
	}
	if userID != 0 && p.UserID != userID {
		return nil, ErrAttemptForbidden
	}
	return p, nil
}

type CheckInput struct {
	PaperID    int64
	UserID     int64
	QuestionID int64
	Answer     json.RawMessage
}

type CheckResult struct {
	Success       bool           `json:"success"`
	Result        grading.Result `json:"result"`
	Pending       bool           `json:"pending"`
	AnswerID      int64          `json:"answer_id"`
	NextQuestion  int64          `json:"next_question"`
	Completed     bool           `json:"completed"`
	MarksObtained float64        `json:"marks_obtained"`
	TimeLeft      float64        `json:"time_left"`
}

// Check grades one submission and stores it. A paper past its hard stop is
// completed instead and ErrTimeUp is returned without storing anything.
func (s *Service) Check(ctx context.Context, in CheckInput) (*CheckResult, error) {
	ctx, span := s.tracer.Start(ctx, "exam.Check", trace.WithAttributes(
		attribute.Int64("answer_paper.id", in.PaperID),
		attribute.Int64("question.id", in.QuestionID),
	))
	defer span.End()

	paper, err := s.loadOwned(ctx, in.PaperID, in.UserID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureLive(ctx, paper, in.QuestionID); err != nil {
		return nil, err
	}

	q, err := s.bank.Question(ctx, in.QuestionID)
	if err != nil {
		return nil, err
	}

	var answerID int64
	if q.Type == question.TypeCode {
		if answerID, err = s.store.NewAnswerID(ctx); err != nil {
			return nil, err
		}
		// The sandbox job outlives a rejected update, so gate once more
		// right before submitting it. A job that still slips through the
		// remaining window expires with the sandbox result TTL.
		if err := s.ensureLive(ctx, paper, in.QuestionID); err != nil {
			return nil, err
		}
	}

	res, err := s.engine.Validate(ctx, q, in.Answer, grading.ValidateContext{AnswerID: answerID, UserID: in.UserID})
	if err != nil {
		if !errors.Is(err, sandbox.ErrUnavailable) {
			return nil, fmt.Errorf("validate answer: %w", err)
		}
		// Stored as pending; the sweep resubmits once the sandbox is back.
		s.log.Warn("sandbox unavailable, answer kept pending",
			zap.Int64("answer_paper_id", paper.ID), zap.Int64("answer_id", answerID), zap.Error(err))
		res = grading.Result{Pending: true, Reason: grading.ReasonSandboxPending, Error: []string{"grading is delayed, check back later"}}
	}

	out := &CheckResult{Success: res.Success, Result: res, Pending: res.Pending}
	updated, err := s.store.UpdatePaper(ctx, paper.ID, func(p *AnswerPaper) error {
		now := s.now()
		if p.Status != StatusInProgress {
			return ErrNotInProgress
		}
		if !p.IsAttemptInProgress(now) {
			return ErrTimeUp
		}
		p.RecordAnswer(Answer{
			ID:         answerID,
			QuestionID: q.ID,
			Value:      in.Answer,
			Correct:    res.Success,
			Marks:      res.Marks,
			Error:      res.Error,
			Pending:    res.Pending,
		}, q.Type.KeepsHistory(), now)

		if q.Type != question.TypeCode || res.Success {
			out.NextQuestion = p.AddCompletedQuestion(q.ID)
		} else {
			p.CurrentQuestionID = q.ID
			out.NextQuestion = q.ID
		}
		p.UpdateMarks()
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrTimeUp) {
			if _, ferr := s.finish(ctx, paper.ID, "time_up"); ferr != nil {
				s.log.Error("complete expired attempt", zap.Int64("answer_paper_id", paper.ID), zap.Error(ferr))
			}
		}
		return nil, err
	}

	if a := updated.LatestAnswer(q.ID, false); a != nil {
		out.AnswerID = a.ID
	}
	out.Completed = out.NextQuestion == 0
	out.MarksObtained = updated.MarksObtained
	out.TimeLeft = updated.TimeLeft(s.now())

	AnswersChecked.WithLabelValues(string(q.Type), res.Reason).Inc()
	s.events.Record(ctx, activity.Event{
		Type:          activity.EventAnswerChecked,
		UserID:        updated.UserID,
		CourseID:      updated.CourseID,
		AnswerPaperID: updated.ID,
		Data:          map[string]interface{}{"question_id": q.ID, "reason": res.Reason, "marks": res.Marks},
	})
	return out, nil
}

// ensureLive rejects work on a paper that is finished or out of time,
// completing the latter on the way.
func (s *Service) ensureLive(ctx context.Context, p *AnswerPaper, questionID int64) error {
	if !p.HasQuestion(questionID) {
		return ErrQuestionNotInPaper
	}
	if p.Status != StatusInProgress {
		return ErrNotInProgress
	}
	if !p.IsAttemptInProgress(s.now()) {
		if _, err := s.finish(ctx, p.ID, "time_up"); err != nil {
			return err
		}
		return ErrTimeUp
	}
	return nil
}

type SkipInput struct {
	PaperID        int64
	UserID         int64
	QuestionID     int64
	NextQuestionID int64
	Code           json.RawMessage
}

type SkipResult struct {
	NextQuestion int64 `json:"question,omitempty"`
	Completed    bool  `json:"completed"`
}

// Skip moves past a question. Unsubmitted code is kept as a skipped
// snapshot that never earns marks.
func (s *Service) Skip(ctx context.Context, in SkipInput) (*SkipResult, error) {
	paper, err := s.loadOwned(ctx, in.PaperID, in.UserID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureLive(ctx, paper, in.QuestionID); err != nil {
		return nil, err
	}
	if !paper.AllowSkip {
		return nil, ErrSkipNotAllowed
	}
	q, err := s.bank.Question(ctx, in.QuestionID)
	if err != nil {
		return nil, err
	}

	out := &SkipResult{}
	_, err = s.store.UpdatePaper(ctx, paper.ID, func(p *AnswerPaper) error {
		now := s.now()
		if p.Status != StatusInProgress {
			return ErrNotInProgress
		}
		if q.Type == question.TypeCode && hasContent(in.Code) {
			p.RecordAnswer(Answer{QuestionID: q.ID, Value: in.Code, Skipped: true}, true, now)
		}

		next := in.NextQuestionID
		if next == 0 || next == q.ID || !p.HasQuestion(next) || p.satisfied(next) {
			next = p.NextQuestion(q.ID)
		}
		if next != 0 {
			p.CurrentQuestionID = next
		}
		out.NextQuestion = next
		out.Completed = next == 0
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func hasContent(raw json.RawMessage) bool {
	v := strings.TrimSpace(string(raw))
	return v != "" && v != "null" && v != `""`
}

// Complete finishes an attempt. Completing a finished paper returns it
// unchanged.
func (s *Service) Complete(ctx context.Context, paperID, userID int64, reason string) (*AnswerPaper, error) {
	ctx, span := s.tracer.Start(ctx, "exam.Complete", trace.WithAttributes(attribute.Int64("answer_paper.id", paperID)))
	defer span.End()

	if _, err := s.loadOwned(ctx, paperID, userID); err != nil {
		return nil, err
	}
	if reason == "" {
		reason = "user"
	}
	return s.finish(ctx, paperID, reason)
}

func (s *Service) finish(ctx context.Context, paperID int64, reason string) (*AnswerPaper, error) {
	changed := false
	p, err := s.store.UpdatePaper(ctx, paperID, func(p *AnswerPaper) error {
		if p.Status.Terminal() {
			return nil
		}
		p.UpdateMarks()
		changed = p.SetEndTime(s.now())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("complete attempt: %w", err)
	}
	if !changed {
		return p, nil
	}

	AttemptsFinished.WithLabelValues(string(StatusCompleted), reason).Inc()
	s.events.Record(ctx, activity.Event{
		Type:          activity.EventAttemptCompleted,
		UserID:        p.UserID,
		CourseID:      p.CourseID,
		AnswerPaperID: p.ID,
		Data:          map[string]interface{}{"reason": reason, "percent": p.Percent, "passed": p.Passed},
	})
	s.refreshGrade(ctx, p)
	s.log.Info("attempt completed",
		zap.Int64("answer_paper_id", p.ID),
		zap.String("reason", reason),
		zap.Float64("marks", p.MarksObtained),
	)
	return p, nil
}

func (s *Service) refreshGrade(ctx context.Context, p *AnswerPaper) {
	if s.grades == nil {
		return
	}
	if err := s.grades.Refresh(ctx, p.UserID, p.CourseID); err != nil {
		s.log.Warn("refresh course grade", zap.Int64("user_id", p.UserID), zap.Int64("course_id", p.CourseID), zap.Error(err))
	}
}

// Quit abandons a live attempt, keeping the marks earned so far.
func (s *Service) Quit(ctx context.Context, paperID, userID int64, reason string) (*AnswerPaper, error) {
	if _, err := s.loadOwned(ctx, paperID, userID); err != nil {
		return nil, err
	}
	p, err := s.store.UpdatePaper(ctx, paperID, func(p *AnswerPaper) error {
		if !p.Quit(s.now()) {
			return ErrNotInProgress
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if reason == "" {
		reason = "user"
	}
	AttemptsFinished.WithLabelValues(string(StatusQuit), reason).Inc()
	s.events.Record(ctx, activity.Event{
		Type:          activity.EventAttemptQuit,
		UserID:        p.UserID,
		CourseID:      p.CourseID,
		AnswerPaperID: p.ID,
		Data:          map[string]interface{}{"reason": reason},
	})
	return p, nil
}

type CodeResult struct {
	Status        string         `json:"status"`
	AnswerID      int64          `json:"answer_id"`
	Result        grading.Result `json:"result"`
	NextQuestion  int64          `json:"next_question,omitempty"`
	MarksObtained float64        `json:"marks_obtained"`
}

// PollCodeResult fetches the sandbox verdict of a code answer and stores
// it. Marks of a finished paper are left alone until a regrade.
func (s *Service) PollCodeResult(ctx context.Context, answerID, userID int64) (*CodeResult, error) {
	paperID, err := s.store.FindAnswer(ctx, answerID)
	if err != nil {
		return nil, err
	}
	paper, err := s.loadOwned(ctx, paperID, userID)
	if err != nil {
		return nil, err
	}
	return s.resolveCode(ctx, paper, answerID)
}

func (s *Service) resolveCode(ctx context.Context, paper *AnswerPaper, answerID int64) (*CodeResult, error) {
	a := paper.AnswerByID(answerID)
	if a == nil {
		return nil, ErrAnswerNotFound
	}
	out := &CodeResult{AnswerID: answerID, MarksObtained: paper.MarksObtained}
	if !a.Pending {
		out.Status = ResultDone
		out.Result = storedResult(a)
		return out, nil
	}

	q, err := s.bank.Question(ctx, a.QuestionID)
	if err != nil {
		return nil, err
	}
	if q.Type != question.TypeCode {
		out.Status = ResultPending
		out.Result = storedResult(a)
		return out, nil
	}

	res, done, err := s.engine.Poll(ctx, q, answerID)
	if errors.Is(err, sandbox.ErrJobNotFound) {
		s.log.Info("sandbox lost job, resubmitting", zap.Int64("answer_id", answerID))
		res, err = s.engine.Resubmit(ctx, q, a.Value, answerID)
		if err != nil {
			return nil, err
		}
		if !res.Pending {
			// Nothing runnable was submitted; store the outcome as final.
			done = true
		}
	} else if err != nil {
		return nil, err
	}
	if !done {
		out.Status = ResultPending
		out.Result = res
		return out, nil
	}

	updated, err := s.store.UpdatePaper(ctx, paper.ID, func(p *AnswerPaper) error {
		cur := p.AnswerByID(answerID)
		if cur == nil {
			return ErrAnswerNotFound
		}
		if !cur.Pending {
			return nil
		}
		cur.Correct = res.Success
		cur.Marks = res.Marks
		cur.Error = res.Error
		cur.Pending = false
		cur.markDirty(s.now())
		if p.Status == StatusInProgress {
			if res.Success {
				out.NextQuestion = p.AddCompletedQuestion(cur.QuestionID)
			}
			p.UpdateMarks()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	AnswersChecked.WithLabelValues(string(q.Type), res.Reason).Inc()
	out.Status = ResultDone
	out.Result = res
	out.MarksObtained = updated.MarksObtained
	return out, nil
}

func storedResult(a *Answer) grading.Result {
	r := grading.Result{Success: a.Correct, Marks: a.Marks, Pending: a.Pending, Error: a.Error}
	switch {
	case a.Pending:
		r.Reason = grading.ReasonSandboxPending
	case a.Correct:
		r.Reason = grading.ReasonCorrect
	case a.Marks > 0:
		r.Reason = grading.ReasonPartial
	default:
		r.Reason = grading.ReasonWrong
	}
	return r
}

// SweepPending resolves code answers that have waited longer than age,
// for clients that never poll. It returns how many were resolved.
func (s *Service) SweepPending(ctx context.Context, age time.Duration, limit int) (int, error) {
	items, err := s.store.PendingCodeAnswers(ctx, s.now().Add(-age), limit)
	if err != nil {
		return 0, err
	}
	resolved := 0
	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return resolved, err
		}
		paper, err := s.store.GetPaper(ctx, it.PaperID)
		if err != nil {
			s.log.Warn("sweep load paper", zap.Int64("answer_paper_id", it.PaperID), zap.Error(err))
			continue
		}
		res, err := s.resolveCode(ctx, paper, it.AnswerID)
		if err != nil {
			if errors.Is(err, sandbox.ErrUnavailable) {
				return resolved, err
			}
			s.log.Warn("sweep resolve answer", zap.Int64("answer_id", it.AnswerID), zap.Error(err))
			continue
		}
		if res.Status == ResultDone {
			resolved++
			PendingSwept.Inc()
		}
	}
	return resolved, nil
}

type AttemptView struct {
	Paper           *AnswerPaper `json:"answerpaper"`
	CurrentQuestion int64        `json:"current_question"`
	TimeLeft        float64      `json:"time_left"`
}

// Get returns a paper for display, completing it first if its time ran out.
func (s *Service) Get(ctx context.Context, paperID, userID int64) (*AttemptView, error) {
	p, err := s.loadOwned(ctx, paperID, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if p.Status == StatusInProgress && !p.IsAttemptInProgress(now) {
		if p, err = s.finish(ctx, p.ID, "time_up"); err != nil {
			return nil, err
		}
	}
	return &AttemptView{Paper: p, CurrentQuestion: p.CurrentQuestion(), TimeLeft: p.TimeLeft(now)}, nil
}

type QuestionStatus struct {
	ID        int64         `json:"id"`
	Title     string        `json:"title"`
	Type      question.Type `json:"type"`
	Attempted bool          `json:"attempted"`
}

type SubmissionStatus struct {
	AnswerPaperID int64            `json:"answerpaper_id"`
	QuizName      string           `json:"quiz_name"`
	CourseID      int64            `json:"course_id"`
	Status        Status           `json:"status"`
	Questions     []QuestionStatus `json:"questions"`
	Attempted     int              `json:"attempted_count"`
	Unattempted   int              `json:"unattempted_count"`
	Total         int              `json:"total_questions"`
	MarksObtained float64          `json:"marks_obtained"`
	Percent       float64          `json:"percent"`
	TimeLeft      float64          `json:"time_left"`
}

// SubmissionStatus lists every question of the paper with whether it has a
// submitted answer.
func (s *Service) SubmissionStatus(ctx context.Context, paperID, userID int64) (*SubmissionStatus, error) {
	view, err := s.Get(ctx, paperID, userID)
	if err != nil {
		return nil, err
	}
	p := view.Paper
	qs, err := s.bank.Questions(ctx, p.Questions)
	if err != nil {
		return nil, err
	}
	quizName := ""
	if quiz, err := s.bank.Quiz(ctx, p.QuizID); err == nil {
		quizName = quiz.Description
	}

	out := &SubmissionStatus{
		AnswerPaperID: p.ID,
		QuizName:      quizName,
		CourseID:      p.CourseID,
		Status:        p.Status,
		Questions:     make([]QuestionStatus, 0, len(p.Questions)),
		Total:         len(p.Questions),
		MarksObtained: p.MarksObtained,
		Percent:       p.Percent,
		TimeLeft:      view.TimeLeft,
	}
	for _, id := range p.Questions {
		q := qs[id]
		st := QuestionStatus{ID: id, Type: q.Type, Title: q.Title(), Attempted: p.attempted(id)}
		if st.Attempted {
			out.Attempted++
		}
		out.Questions = append(out.Questions, st)
	}
	out.Unattempted = out.Total - out.Attempted
	return out, nil
}
