package grading

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"quizengine/internal/question"
	"quizengine/internal/sandbox"
)

const (
	ReasonCorrect            = "correct"
	ReasonWrong              = "wrong"
	ReasonPartial            = "partial"
	ReasonUnanswered         = "unanswered"
	ReasonMalformedPayload   = "malformed_payload"
	ReasonMalformedAnswerKey = "malformed_answer_key"
	ReasonSandboxPending     = "sandbox_pending"
	ReasonManualGrading      = "manual_grading"
)

// Result is the outcome of validating one submission.
type Result struct {
	Success bool     `json:"success"`
	Marks   float64  `json:"marks"`
	Pending bool     `json:"pending"`
	Reason  string   `json:"reason"`
	Error   []string `json:"error,omitempty"`
}

// ValidateContext identifies the stored answer a submission belongs to.
type ValidateContext struct {
	AnswerID int64
	UserID   int64
}

type Option func(*Engine)

// WithEpsilon sets the slack added to float error margins.
func WithEpsilon(eps float64) Option {
	return func(e *Engine) {
		if eps >= 0 {
			e.epsilon = eps
		}
	}
}

type Engine struct {
	queue   sandbox.Queue
	epsilon float64
}

func NewEngine(queue sandbox.Queue, opts ...Option) *Engine {
	e := &Engine{queue: queue, epsilon: 1e-9}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Validate grades a submission. Wrong or malformed answers are reported in
// the Result; an error is returned only when the code sandbox cannot take
// the job.
func (e *Engine) Validate(ctx context.Context, q *question.Question, submitted json.RawMessage, vc ValidateContext) (Result, error) {
	switch q.Type {
	case question.TypeCode:
		return e.dispatchCode(ctx, q, submitted, vc)
	case question.TypeUpload:
		return Result{Pending: true, Reason: ReasonManualGrading}, nil
	default:
		return e.Score(q, submitted), nil
	}
}

// Score grades the question types that need no external service.
func (e *Engine) Score(q *question.Question, submitted json.RawMessage) Result {
	switch q.Type {
	case question.TypeMCQ:
		return scoreMCQ(q, submitted)
	case question.TypeMCC:
		return scoreMCC(q, submitted)
	case question.TypeInteger:
		return scoreInteger(q, submitted)
	case question.TypeFloat:
		return scoreFloat(q, submitted, e.epsilon)
	case question.TypeString:
		return scoreString(q, submitted)
	case question.TypeArrange:
		return scoreArrange(q, submitted)
	case question.TypeUpload:
		return Result{Pending: true, Reason: ReasonManualGrading}
	case question.TypeCode:
		return Result{Pending: true, Reason: ReasonSandboxPending}
	default:
		return malformedKey(fmt.Sprintf("unsupported question type %q", q.Type))
	}
}

func (e *Engine) dispatchCode(ctx context.Context, q *question.Question, submitted json.RawMessage, vc ValidateContext) (Result, error) {
	code, status := parseText(submitted)
	switch status {
	case statusUnanswered:
		return Result{Reason: ReasonUnanswered, Error: []string{"no code submitted"}}, nil
	case statusMalformed:
		return malformedPayload("code answer must be a string"), nil
	}
	if e.queue == nil {
		return Result{}, sandbox.ErrUnavailable
	}

	job, err := BuildJob(q, code, vc.AnswerID)
	if err != nil {
		return malformedKey(err.Error()), nil
	}
	if _, err := e.queue.Submit(ctx, job); err != nil {
		if errors.Is(err, sandbox.ErrUnavailable) {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("%w: %v", sandbox.ErrUnavailable, err)
	}
	return Result{Pending: true, Reason: ReasonSandboxPending}, nil
}

// Poll reads the sandbox verdict for a code answer. done is false while the
// job is still queued; ErrJobNotFound means the job was lost and must be
// resubmitted.
func (e *Engine) Poll(ctx context.Context, q *question.Question, answerID int64) (Result, bool, error) {
	if e.queue == nil {
		return Result{}, false, sandbox.ErrUnavailable
	}
	res, err := e.queue.Poll(ctx, JobID(answerID))
	if err != nil {
		return Result{}, false, err
	}
	if res.Status != sandbox.StatusDone || res.Verdict == nil {
		return Result{Pending: true, Reason: ReasonSandboxPending}, false, nil
	}
	return e.ScoreVerdict(q, *res.Verdict), true, nil
}

// Resubmit queues code for an existing answer again.
func (e *Engine) Resubmit(ctx context.Context, q *question.Question, submitted json.RawMessage, answerID int64) (Result, error) {
	return e.dispatchCode(ctx, q, submitted, ValidateContext{AnswerID: answerID})
}

// BuildJob packages code with the question's executable test cases.
func BuildJob(q *question.Question, code string, answerID int64) (sandbox.Job, error) {
	job := sandbox.Job{
		ID:       JobID(answerID),
		Code:     code,
		Language: q.Language,
	}
	for _, tc := range q.TestCases {
		w, ok := tc.(question.Weighted)
		if !ok {
			continue
		}
		params, err := question.EncodeParams(tc)
		if err != nil {
			return sandbox.Job{}, fmt.Errorf("encode test case %d: %w", tc.CaseID(), err)
		}
		job.TestCases = append(job.TestCases, sandbox.TestCase{
			ID:     tc.CaseID(),
			Kind:   string(tc.Kind()),
			Weight: w.CaseWeight(),
			Hidden: w.IsHidden(),
			Params: params,
		})
	}
	if len(job.TestCases) == 0 {
		return sandbox.Job{}, errors.New("code question has no executable test cases")
	}
	return job, nil
}

// JobID is the sandbox key for an answer.
func JobID(answerID int64) string {
	return strconv.FormatInt(answerID, 10)
}

// ScoreVerdict turns a sandbox verdict into marks. With partial grading the
// marks are proportional to the weight of passing test cases.
func (e *Engine) ScoreVerdict(q *question.Question, v sandbox.Verdict) Result {
	if len(v.Cases) == 0 {
		if v.Success {
			return Result{Success: true, Marks: q.Points, Reason: ReasonCorrect, Error: v.Error}
		}
		return Result{Reason: ReasonWrong, Error: v.Error}
	}

	weights := make(map[int64]float64, len(q.TestCases))
	for _, tc := range q.TestCases {
		if w, ok := tc.(question.Weighted); ok {
			weights[tc.CaseID()] = w.CaseWeight()
		}
	}

	total, passed := 0.0, 0.0
	allPassed := true
	for _, c := range v.Cases {
		w, ok := weights[c.TestCaseID]
		if !ok {
			w = c.Weight
		}
		if w <= 0 {
			w = 1
		}
		total += w
		if c.Passed {
			passed += w
		} else {
			allPassed = false
		}
	}

	success := allPassed && v.Success
	if success {
		return Result{Success: true, Marks: q.Points, Reason: ReasonCorrect, Error: v.Error}
	}
	if q.PartialGrading && total > 0 && passed > 0 {
		return Result{Marks: roundMarks(q.Points * passed / total), Reason: ReasonPartial, Error: v.Error}
	}
	return Result{Reason: ReasonWrong, Error: v.Error}
}

func scoreMCQ(q *question.Question, raw json.RawMessage) Result {
	correct := q.CorrectOptionIDs()
	if len(correct) != 1 {
		return malformedKey("mcq question needs exactly one correct option")
	}
	selected, status := parseSingleID(raw)
	switch status {
	case statusUnanswered:
		return unanswered()
	case statusMalformed:
		return malformedPayload("mcq answer must be a single option id")
	}
	if selected == correct[0] {
		return correctResult(q)
	}
	return wrongResult("incorrect option selected")
}

// scoreMCC awards full marks for the exact correct set. With partial
// grading a submission without wrong options earns matched/total_correct of
// the points; selecting any wrong option floors the credit at zero.
func scoreMCC(q *question.Question, raw json.RawMessage) Result {
	correct := q.CorrectOptionIDs()
	if len(correct) == 0 {
		return malformedKey("mcc question has no correct options")
	}
	selected, status := parseIDSet(raw)
	switch status {
	case statusUnanswered:
		return unanswered()
	case statusMalformed:
		return malformedPayload("mcc answer must be a list of option ids")
	}

	correctSet := make(map[int64]bool, len(correct))
	for _, id := range correct {
		correctSet[id] = true
	}
	matched, wrong := 0, 0
	for _, id := range selected {
		if correctSet[id] {
			matched++
		} else {
			wrong++
		}
	}

	if matched == len(correctSet) && wrong == 0 {
		return correctResult(q)
	}
	if !q.PartialGrading {
		return wrongResult("selected options do not match")
	}

	credit := 0.0
	if wrong == 0 {
		credit = float64(matched) / float64(len(correctSet))
	}
	if credit <= 0 {
		return wrongResult("selected options do not match")
	}
	return Result{Marks: roundMarks(q.Points * credit), Reason: ReasonPartial, Error: []string{"partially correct"}}
}

func scoreInteger(q *question.Question, raw json.RawMessage) Result {
	var cases []question.IntegerTestCase
	for _, tc := range q.TestCases {
		if v, ok := tc.(question.IntegerTestCase); ok {
			cases = append(cases, v)
		}
	}
	if len(cases) == 0 {
		return malformedKey("integer question has no test cases")
	}
	got, status := parseInteger(raw)
	switch status {
	case statusUnanswered:
		return unanswered()
	case statusMalformed:
		return malformedPayload("answer must be an integer")
	}
	for _, tc := range cases {
		if tc.Correct == got {
			return correctResult(q)
		}
	}
	return wrongResult("incorrect answer")
}

func scoreFloat(q *question.Question, raw json.RawMessage, eps float64) Result {
	var cases []question.FloatTestCase
	for _, tc := range q.TestCases {
		if v, ok := tc.(question.FloatTestCase); ok {
			cases = append(cases, v)
		}
	}
	if len(cases) == 0 {
		return malformedKey("float question has no test cases")
	}
	got, status := parseFloat(raw)
	switch status {
	case statusUnanswered:
		return unanswered()
	case statusMalformed:
		return malformedPayload("answer must be a number")
	}
	for _, tc := range cases {
		if math.Abs(got-tc.Correct) <= tc.ErrorMargin+eps {
			return correctResult(q)
		}
	}
	return wrongResult("incorrect answer")
}

func scoreString(q *question.Question, raw json.RawMessage) Result {
	var cases []question.StringTestCase
	for _, tc := range q.TestCases {
		if v, ok := tc.(question.StringTestCase); ok {
			cases = append(cases, v)
		}
	}
	if len(cases) == 0 {
		return malformedKey("string question has no test cases")
	}
	got, status := parseText(raw)
	switch status {
	case statusUnanswered:
		return unanswered()
	case statusMalformed:
		return malformedPayload("answer must be text")
	}
	for _, tc := range cases {
		if tc.Normalize(got) == tc.Normalize(tc.Correct) {
			return correctResult(q)
		}
	}
	return wrongResult("incorrect answer")
}

func scoreArrange(q *question.Question, raw json.RawMessage) Result {
	canonical := make([]int64, 0, len(q.TestCases))
	for _, tc := range q.TestCases {
		if _, ok := tc.(question.ArrangeTestCase); ok {
			canonical = append(canonical, tc.CaseID())
		}
	}
	if len(canonical) == 0 {
		return malformedKey("arrange question has no options")
	}
	got, status := parseIDList(raw)
	switch status {
	case statusUnanswered:
		return unanswered()
	case statusMalformed:
		return malformedPayload("arrange answer must be an ordered list of option ids")
	}
	if len(got) != len(canonical) {
		return wrongResult("incorrect order")
	}
	for i := range got {
		if got[i] != canonical[i] {
			return wrongResult("incorrect order")
		}
	}
	return correctResult(q)
}

func correctResult(q *question.Question) Result {
	return Result{Success: true, Marks: q.Points, Reason: ReasonCorrect}
}

func wrongResult(msg string) Result {
	return Result{Reason: ReasonWrong, Error: []string{msg}}
}

func unanswered() Result {
	return Result{Reason: ReasonUnanswered, Error: []string{"no answer submitted"}}
}

func malformedPayload(msg string) Result {
	return Result{Reason: ReasonMalformedPayload, Error: []string{msg}}
}

func malformedKey(msg string) Result {
	return Result{Reason: ReasonMalformedAnswerKey, Error: []string{msg}}
}

func roundMarks(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
