package question

import (
	"errors"
	"math/rand"
	"testing"
)

func mcq(id int64, correct bool) TestCase {
	return WithID(MCQTestCase{Options: "opt", Correct: correct}, id)
}

func TestQuestionValidate(t *testing.T) {
	tests := []struct {
		name    string
		q       Question
		wantErr bool
	}{
		{name: "mcq valid", q: Question{Type: TypeMCQ, Points: 1, TestCases: []TestCase{mcq(1, true), mcq(2, false)}}},
		{name: "mcq two correct", q: Question{Type: TypeMCQ, Points: 1, TestCases: []TestCase{mcq(1, true), mcq(2, true)}}, wantErr: true},
		{name: "mcc valid", q: Question{Type: TypeMCC, Points: 2, TestCases: []TestCase{mcq(1, true), mcq(2, true), mcq(3, false)}}},
		{name: "mcc none correct", q: Question{Type: TypeMCC, Points: 2, TestCases: []TestCase{mcq(1, false)}}, wantErr: true},
		{name: "zero points", q: Question{Type: TypeInteger, Points: 0, TestCases: []TestCase{IntegerTestCase{Correct: 1}}}, wantErr: true},
		{name: "unknown type", q: Question{Type: "essay", Points: 1}, wantErr: true},
		{name: "upload without cases", q: Question{Type: TypeUpload, Points: 1}},
		{name: "integer without cases", q: Question{Type: TypeInteger, Points: 1}, wantErr: true},
		{name: "float on integer question", q: Question{Type: TypeInteger, Points: 1, TestCases: []TestCase{FloatTestCase{Correct: 1}}}, wantErr: true},
		{name: "negative margin", q: Question{Type: TypeFloat, Points: 1, TestCases: []TestCase{FloatTestCase{Correct: 1, ErrorMargin: -1}}}, wantErr: true},
		{name: "bad string check", q: Question{Type: TypeString, Points: 1, TestCases: []TestCase{StringTestCase{Correct: "x", Check: "fuzzy"}}}, wantErr: true},
		{name: "code mixed cases", q: Question{Type: TypeCode, Points: 1, TestCases: []TestCase{StdIOTestCase{ExpectedOutput: "1"}, HookTestCase{HookCode: "x"}}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.q.Validate()
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				if !errors.Is(err, ErrInvalidQuestion) {
					t.Fatalf("expected ErrInvalidQuestion, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		})
	}
}

func TestDecodeTestCaseDefaultsStringCheck(t *testing.T) {
	tc, err := DecodeTestCase(7, KindString, []byte(`{"correct":"Paris"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	s, ok := tc.(StringTestCase)
	if !ok {
		t.Fatalf("expected StringTestCase, got %T", tc)
	}
	if s.Check != CheckLower || s.CaseID() != 7 {
		t.Fatalf("unexpected decode result: %+v", s)
	}
	if got := s.Normalize("  PARIS "); got != "paris" {
		t.Fatalf("normalize got %q", got)
	}
}

func TestDecodeTestCaseRoundTripKeepsParams(t *testing.T) {
	in := WithID(StdIOTestCase{ExpectedInput: "1 2", ExpectedOutput: "3", Weight: 2, Hidden: true}, 4)
	raw, err := EncodeParams(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := DecodeTestCase(4, KindStdIO, raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out != in {
		t.Fatalf("round trip mismatch: %+v vs %+v", out, in)
	}
}

func TestDecodeTestCaseUnknownKind(t *testing.T) {
	if _, err := DecodeTestCase(1, "essaytestcase", nil); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func TestPaperOrderedFixedIDs(t *testing.T) {
	p := Paper{FixedQuestionIDs: []int64{1, 2, 3, 4}, FixedQuestionOrder: "3, 1,99,x"}
	got := p.OrderedFixedIDs()
	want := []int64{3, 1, 2, 4}
	if !equalIDs(got, want) {
		t.Fatalf("order got=%v want=%v", got, want)
	}
}

func TestPaperRemoveFixedQuestionKeepsOrderConsistent(t *testing.T) {
	p := Paper{}
	p.SetFixedQuestions([]int64{5, 6, 7})
	if !p.RemoveFixedQuestion(6) {
		t.Fatalf("expected removal")
	}
	if p.FixedQuestionOrder != "5,7" {
		t.Fatalf("order string got %q", p.FixedQuestionOrder)
	}
	if !equalIDs(p.FixedQuestionIDs, []int64{5, 7}) {
		t.Fatalf("fixed ids got %v", p.FixedQuestionIDs)
	}
	if p.RemoveFixedQuestion(42) {
		t.Fatalf("removing a non-member should report false")
	}
}

func TestPaperComposeSamplesRandomSets(t *testing.T) {
	p := Paper{
		FixedQuestionIDs: []int64{1, 2},
		RandomSets: []RandomSet{
			{ID: 1, Marks: 2, NumQuestions: 2, QuestionIDs: []int64{10, 11, 12, 2}},
			{ID: 2, Marks: 1, NumQuestions: 5, QuestionIDs: []int64{20}},
		},
	}
	got := p.Compose(rand.New(rand.NewSource(1)))
	if len(got) != 5 {
		t.Fatalf("expected 5 questions, got %v", got)
	}
	if got[0] != 1 || got[1] != 2 {
		t.Fatalf("fixed questions should lead when not shuffled: %v", got)
	}
	seen := map[int64]bool{}
	for _, id := range got {
		if seen[id] {
			t.Fatalf("duplicate question %d in %v", id, got)
		}
		seen[id] = true
	}
	if !seen[20] {
		t.Fatalf("second set should contribute its only question: %v", got)
	}
}

func TestPaperComputeTotalMarks(t *testing.T) {
	p := Paper{
		FixedQuestionIDs: []int64{1, 2},
		RandomSets:       []RandomSet{{Marks: 2, NumQuestions: 3, QuestionIDs: []int64{7, 8}}},
	}
	got := p.ComputeTotalMarks(map[int64]float64{1: 5, 2: 2.5})
	if got != 11.5 {
		t.Fatalf("total marks got %v want 11.5", got)
	}
}

func TestQuestionTitleFallback(t *testing.T) {
	q := Question{ID: 3}
	if q.Title() != "Question 3" {
		t.Fatalf("got %q", q.Title())
	}
	q.Description = "What is the capital city of France, and which river runs through it?"
	if got := q.Title(); len([]rune(got)) != 53 {
		t.Fatalf("expected truncated description, got %q", got)
	}
	q.Summary = "Capitals"
	if q.Title() != "Capitals" {
		t.Fatalf("summary should win, got %q", q.Title())
	}
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestPaperNegativeRandomSetCountDrawsNothing(t *testing.T) {
	p := Paper{
		FixedQuestionIDs: []int64{1},
		RandomSets: []RandomSet{
			{ID: 1, Marks: 4, NumQuestions: -1, QuestionIDs: []int64{2, 3}},
			{ID: 2, Marks: 1, NumQuestions: 1, QuestionIDs: []int64{9}},
		},
	}
	got := p.Compose(rand.New(rand.NewSource(7)))
	if !equalIDs(got, []int64{1, 9}) {
		t.Fatalf("compose got=%v want=[1 9]", got)
	}
	if total := p.ComputeTotalMarks(map[int64]float64{1: 5}); total != 6 {
		t.Fatalf("negative count must not subtract marks, total=%v", total)
	}
}
