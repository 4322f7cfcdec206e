package grading

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"quizengine/internal/question"
	"quizengine/internal/sandbox"
)

func mcqCase(id int64, correct bool) question.TestCase {
	return question.WithID(question.MCQTestCase{Options: "opt", Correct: correct}, id)
}

func mccQuestion(partial bool) *question.Question {
	return &question.Question{
		ID:             1,
		Type:           question.TypeMCC,
		Points:         10,
		PartialGrading: partial,
		TestCases:      []question.TestCase{mcqCase(1, true), mcqCase(2, true), mcqCase(3, false), mcqCase(4, false)},
	}
}

func TestScore_MCQ(t *testing.T) {
	q := &question.Question{Type: question.TypeMCQ, Points: 2, TestCases: []question.TestCase{mcqCase(1, false), mcqCase(2, true)}}
	tests := []struct {
		name    string
		payload string
		reason  string
		success bool
		marks   float64
	}{
		{name: "correct number", payload: `2`, reason: ReasonCorrect, success: true, marks: 2},
		{name: "correct string", payload: `"2"`, reason: ReasonCorrect, success: true, marks: 2},
		{name: "correct single list", payload: `["2"]`, reason: ReasonCorrect, success: true, marks: 2},
		{name: "wrong", payload: `1`, reason: ReasonWrong},
		{name: "two selections", payload: `[1,2]`, reason: ReasonMalformedPayload},
		{name: "empty", payload: ``, reason: ReasonUnanswered},
		{name: "null", payload: `null`, reason: ReasonUnanswered},
		{name: "not an id", payload: `"abc"`, reason: ReasonMalformedPayload},
		{name: "invalid json", payload: `{"x":`, reason: ReasonMalformedPayload},
	}

	e := NewEngine(nil)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assertResult(t, e.Score(q, json.RawMessage(tc.payload)), tc.reason, tc.success, tc.marks)
		})
	}
}

func TestScore_MCCPartialGrading(t *testing.T) {
	tests := []struct {
		name    string
		partial bool
		payload string
		reason  string
		success bool
		marks   float64
	}{
		{name: "exact set", partial: true, payload: `[2,1]`, reason: ReasonCorrect, success: true, marks: 10},
		{name: "half the correct options", partial: true, payload: `[1]`, reason: ReasonPartial, marks: 5},
		{name: "extra wrong option cancels credit", partial: true, payload: `[1,2,3]`, reason: ReasonWrong, marks: 0},
		{name: "only wrong options", partial: true, payload: `[3,4]`, reason: ReasonWrong, marks: 0},
		{name: "duplicates collapse", partial: true, payload: `[1,1]`, reason: ReasonPartial, marks: 5},
		{name: "no partial grading", partial: false, payload: `[1]`, reason: ReasonWrong, marks: 0},
		{name: "no partial grading exact", partial: false, payload: `["1","2"]`, reason: ReasonCorrect, success: true, marks: 10},
		{name: "scalar is malformed", partial: true, payload: `{"a":1}`, reason: ReasonMalformedPayload},
		{name: "empty list", partial: true, payload: `[]`, reason: ReasonUnanswered},
	}

	e := NewEngine(nil)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assertResult(t, e.Score(mccQuestion(tc.partial), json.RawMessage(tc.payload)), tc.reason, tc.success, tc.marks)
		})
	}
}

func TestScore_Numeric(t *testing.T) {
	intQ := &question.Question{Type: question.TypeInteger, Points: 5, TestCases: []question.TestCase{question.IntegerTestCase{Correct: 42}}}
	floatQ := &question.Question{Type: question.TypeFloat, Points: 3, TestCases: []question.TestCase{question.FloatTestCase{Correct: 3.14, ErrorMargin: 0.01}}}

	tests := []struct {
		name    string
		q       *question.Question
		payload string
		reason  string
		success bool
		marks   float64
	}{
		{name: "integer exact", q: intQ, payload: `42`, reason: ReasonCorrect, success: true, marks: 5},
		{name: "integer as string list", q: intQ, payload: `["42"]`, reason: ReasonCorrect, success: true, marks: 5},
		{name: "integer wrong", q: intQ, payload: `41`, reason: ReasonWrong},
		{name: "integer fractional", q: intQ, payload: `42.5`, reason: ReasonMalformedPayload},
		{name: "integer text", q: intQ, payload: `"forty"`, reason: ReasonMalformedPayload},
		{name: "float inside margin", q: floatQ, payload: `3.145`, reason: ReasonCorrect, success: true, marks: 3},
		{name: "float on margin edge", q: floatQ, payload: `3.15`, reason: ReasonCorrect, success: true, marks: 3},
		{name: "float outside margin", q: floatQ, payload: `3.16`, reason: ReasonWrong},
		{name: "float from string", q: floatQ, payload: `"3.139"`, reason: ReasonCorrect, success: true, marks: 3},
		{name: "float garbage", q: floatQ, payload: `"pi"`, reason: ReasonMalformedPayload},
	}

	e := NewEngine(nil)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assertResult(t, e.Score(tc.q, json.RawMessage(tc.payload)), tc.reason, tc.success, tc.marks)
		})
	}
}

func TestScore_StringModes(t *testing.T) {
	mk := func(check question.StringCheck) *question.Question {
		return &question.Question{Type: question.TypeString, Points: 1, TestCases: []question.TestCase{question.StringTestCase{Correct: "Paris", Check: check}}}
	}
	tests := []struct {
		name    string
		check   question.StringCheck
		payload string
		success bool
	}{
		{name: "lower folds case", check: question.CheckLower, payload: `" paris "`, success: true},
		{name: "exact rejects case", check: question.CheckExact, payload: `"paris"`},
		{name: "exact rejects padding", check: question.CheckExact, payload: `"Paris "`},
		{name: "exact accepts same", check: question.CheckExact, payload: `"Paris"`, success: true},
		{name: "trim keeps case", check: question.CheckTrim, payload: `"  Paris"`, success: true},
		{name: "trim rejects case", check: question.CheckTrim, payload: `"PARIS"`},
	}

	e := NewEngine(nil)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := e.Score(mk(tc.check), json.RawMessage(tc.payload))
			if got.Success != tc.success {
				t.Fatalf("success got=%v want=%v (%+v)", got.Success, tc.success, got)
			}
		})
	}
}

func TestScore_Arrange(t *testing.T) {
	q := &question.Question{Type: question.TypeArrange, Points: 4, TestCases: []question.TestCase{
		question.WithID(question.ArrangeTestCase{Options: "a"}, 7),
		question.WithID(question.ArrangeTestCase{Options: "b"}, 8),
		question.WithID(question.ArrangeTestCase{Options: "c"}, 9),
	}}
	e := NewEngine(nil)
	assertResult(t, e.Score(q, json.RawMessage(`[7,8,9]`)), ReasonCorrect, true, 4)
	assertResult(t, e.Score(q, json.RawMessage(`[8,7,9]`)), ReasonWrong, false, 0)
	assertResult(t, e.Score(q, json.RawMessage(`[7,8]`)), ReasonWrong, false, 0)
	assertResult(t, e.Score(q, json.RawMessage(`"7,8,9"`)), ReasonMalformedPayload, false, 0)
}

func codeQuestion(partial bool) *question.Question {
	return &question.Question{
		ID:             9,
		Type:           question.TypeCode,
		Language:       "python",
		Points:         10,
		PartialGrading: partial,
		TestCases: []question.TestCase{
			question.WithID(question.StdIOTestCase{ExpectedInput: "1", ExpectedOutput: "1", Weight: 1}, 1),
			question.WithID(question.StdIOTestCase{ExpectedInput: "2", ExpectedOutput: "4", Weight: 3}, 2),
		},
	}
}

func TestValidate_CodeDispatchesJob(t *testing.T) {
	queue := sandbox.NewMemoryQueue()
	e := NewEngine(queue)

	res, err := e.Validate(context.Background(), codeQuestion(false), json.RawMessage(`"print(input())"`), ValidateContext{AnswerID: 55})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !res.Pending || res.Reason != ReasonSandboxPending {
		t.Fatalf("expected pending result, got %+v", res)
	}
	job, ok := queue.Job("55")
	if !ok {
		t.Fatalf("expected job keyed by answer id")
	}
	if job.Language != "python" || len(job.TestCases) != 2 || job.TestCases[1].Weight != 3 {
		t.Fatalf("unexpected job: %+v", job)
	}
}

func TestValidate_CodeSandboxDown(t *testing.T) {
	queue := sandbox.NewMemoryQueue()
	queue.SetDown(true)
	e := NewEngine(queue)

	_, err := e.Validate(context.Background(), codeQuestion(false), json.RawMessage(`"x=1"`), ValidateContext{AnswerID: 1})
	if !errors.Is(err, sandbox.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestValidate_UploadIsManual(t *testing.T) {
	e := NewEngine(nil)
	res, err := e.Validate(context.Background(), &question.Question{Type: question.TypeUpload, Points: 5}, json.RawMessage(`["report.pdf"]`), ValidateContext{})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !res.Pending || res.Marks != 0 || res.Reason != ReasonManualGrading {
		t.Fatalf("unexpected upload result: %+v", res)
	}
}

func TestScoreVerdict(t *testing.T) {
	tests := []struct {
		name    string
		partial bool
		verdict sandbox.Verdict
		reason  string
		success bool
		marks   float64
	}{
		{
			name:    "all passed",
			verdict: sandbox.Verdict{Success: true, Cases: []sandbox.CaseVerdict{{TestCaseID: 1, Passed: true}, {TestCaseID: 2, Passed: true}}},
			reason:  ReasonCorrect, success: true, marks: 10,
		},
		{
			name:    "weighted partial",
			partial: true,
			verdict: sandbox.Verdict{Cases: []sandbox.CaseVerdict{{TestCaseID: 1, Passed: false}, {TestCaseID: 2, Passed: true}}},
			reason:  ReasonPartial, marks: 7.5,
		},
		{
			name:    "all or nothing",
			verdict: sandbox.Verdict{Cases: []sandbox.CaseVerdict{{TestCaseID: 1, Passed: false}, {TestCaseID: 2, Passed: true}}},
			reason:  ReasonWrong,
		},
		{
			name:    "no cases reported failure",
			verdict: sandbox.Verdict{Error: []string{"SyntaxError"}},
			reason:  ReasonWrong,
		},
	}

	e := NewEngine(nil)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assertResult(t, e.ScoreVerdict(codeQuestion(tc.partial), tc.verdict), tc.reason, tc.success, tc.marks)
		})
	}
}

func TestPoll_CodeVerdict(t *testing.T) {
	queue := sandbox.NewMemoryQueue()
	e := NewEngine(queue)
	q := codeQuestion(true)

	if _, _, err := e.Poll(context.Background(), q, 77); !errors.Is(err, sandbox.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound before submit, got %v", err)
	}
	if _, err := e.Resubmit(context.Background(), q, json.RawMessage(`"print(1)"`), 77); err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	res, done, err := e.Poll(context.Background(), q, 77)
	if err != nil || done || !res.Pending {
		t.Fatalf("expected pending poll, got res=%+v done=%v err=%v", res, done, err)
	}

	_ = queue.Complete(context.Background(), "77", sandbox.Verdict{Cases: []sandbox.CaseVerdict{{TestCaseID: 1, Passed: true}, {TestCaseID: 2, Passed: false}}})
	res, done, err = e.Poll(context.Background(), q, 77)
	if err != nil || !done {
		t.Fatalf("expected finished poll, got done=%v err=%v", done, err)
	}
	assertResult(t, res, ReasonPartial, false, 2.5)
}

func assertResult(t *testing.T, got Result, reason string, success bool, marks float64) {
	t.Helper()
	if got.Reason != reason {
		t.Fatalf("reason mismatch got=%s want=%s (%+v)", got.Reason, reason, got)
	}
	if got.Success != success {
		t.Fatalf("success mismatch got=%v want=%v", got.Success, success)
	}
	if math.Abs(got.Marks-marks) > 1e-9 {
		t.Fatalf("marks mismatch got=%v want=%v", got.Marks, marks)
	}
}
