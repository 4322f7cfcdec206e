package question

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Kind string

const (
	KindMCQ      Kind = "mcqtestcase"
	KindInteger  Kind = "integertestcase"
	KindFloat    Kind = "floattestcase"
	KindString   Kind = "stringtestcase"
	KindArrange  Kind = "arrangetestcase"
	KindStdIO    Kind = "stdiobasedtestcase"
	KindStandard Kind = "standardtestcase"
	KindHook     Kind = "hooktestcase"
)

// TestCase is closed over the variants declared in this file.
type TestCase interface {
	Kind() Kind
	CaseID() int64
	sealed()
}

// Weighted is implemented by the test cases a code sandbox executes.
type Weighted interface {
	TestCase
	CaseWeight() float64
	IsHidden() bool
}

type base struct {
	ID int64 `json:"id"`
}

func (b base) CaseID() int64 { return b.ID }
func (base) sealed()         {}

type MCQTestCase struct {
	base
	Options string `json:"options"`
	Correct bool   `json:"correct"`
}

type IntegerTestCase struct {
	base
	Correct int64 `json:"correct"`
}

type FloatTestCase struct {
	base
	Correct     float64 `json:"correct"`
	ErrorMargin float64 `json:"error_margin"`
}

type StringCheck string

const (
	CheckExact StringCheck = "exact"
	CheckLower StringCheck = "lower"
	CheckTrim  StringCheck = "trim"
)

type StringTestCase struct {
	base
	Correct string      `json:"correct"`
	Check   StringCheck `json:"string_check"`
}

// Normalize applies the configured comparison mode to s.
func (tc StringTestCase) Normalize(s string) string {
	switch tc.Check {
	case CheckExact:
		return s
	case CheckTrim:
		return strings.TrimSpace(s)
	default:
		return strings.ToLower(strings.TrimSpace(s))
	}
}

type ArrangeTestCase struct {
	base
	Options string `json:"options"`
}

type StdIOTestCase struct {
	base
	ExpectedInput  string  `json:"expected_input"`
	ExpectedOutput string  `json:"expected_output"`
	Weight         float64 `json:"weight"`
	Hidden         bool    `json:"hidden"`
}

type StandardTestCase struct {
	base
	TestCase     string  `json:"test_case"`
	TestCaseArgs string  `json:"test_case_args"`
	Weight       float64 `json:"weight"`
	Hidden       bool    `json:"hidden"`
}

type HookTestCase struct {
	base
	HookCode string  `json:"hook_code"`
	Weight   float64 `json:"weight"`
	Hidden   bool    `json:"hidden"`
}

func (MCQTestCase) Kind() Kind      { return KindMCQ }
func (IntegerTestCase) Kind() Kind  { return KindInteger }
func (FloatTestCase) Kind() Kind    { return KindFloat }
func (StringTestCase) Kind() Kind   { return KindString }
func (ArrangeTestCase) Kind() Kind  { return KindArrange }
func (StdIOTestCase) Kind() Kind    { return KindStdIO }
func (StandardTestCase) Kind() Kind { return KindStandard }
func (HookTestCase) Kind() Kind     { return KindHook }

func (tc StdIOTestCase) CaseWeight() float64    { return tc.Weight }
func (tc StandardTestCase) CaseWeight() float64 { return tc.Weight }
func (tc HookTestCase) CaseWeight() float64     { return tc.Weight }

func (tc StdIOTestCase) IsHidden() bool    { return tc.Hidden }
func (tc StandardTestCase) IsHidden() bool { return tc.Hidden }
func (tc HookTestCase) IsHidden() bool     { return tc.Hidden }

// DecodeTestCase builds a variant from its stored kind and JSON parameters.
func DecodeTestCase(id int64, kind Kind, params []byte) (TestCase, error) {
	if len(params) == 0 {
		params = []byte(`{}`)
	}
	var (
		tc  TestCase
		err error
	)
	switch kind {
	case KindMCQ:
		v := MCQTestCase{}
		err = json.Unmarshal(params, &v)
		v.ID = id
		tc = v
	case KindInteger:
		v := IntegerTestCase{}
		err = json.Unmarshal(params, &v)
		v.ID = id
		tc = v
	case KindFloat:
		v := FloatTestCase{}
		err = json.Unmarshal(params, &v)
		v.ID = id
		tc = v
	case KindString:
		v := StringTestCase{}
		err = json.Unmarshal(params, &v)
		v.ID = id
		if v.Check == "" {
			v.Check = CheckLower
		}
		tc = v
	case KindArrange:
		v := ArrangeTestCase{}
		err = json.Unmarshal(params, &v)
		v.ID = id
		tc = v
	case KindStdIO:
		v := StdIOTestCase{}
		err = json.Unmarshal(params, &v)
		v.ID = id
		tc = v
	case KindStandard:
		v := StandardTestCase{}
		err = json.Unmarshal(params, &v)
		v.ID = id
		tc = v
	case KindHook:
		v := HookTestCase{}
		err = json.Unmarshal(params, &v)
		v.ID = id
		tc = v
	default:
		return nil, fmt.Errorf("unknown test case kind %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s params: %w", kind, err)
	}
	return tc, nil
}

// EncodeParams is the inverse of DecodeTestCase; the id is stored separately.
func EncodeParams(tc TestCase) ([]byte, error) {
	return json.Marshal(tc)
}

// WithID returns a copy of tc carrying the given id.
func WithID(tc TestCase, id int64) TestCase {
	switch v := tc.(type) {
	case MCQTestCase:
		v.ID = id
		return v
	case IntegerTestCase:
		v.ID = id
		return v
	case FloatTestCase:
		v.ID = id
		return v
	case StringTestCase:
		v.ID = id
		return v
	case ArrangeTestCase:
		v.ID = id
		return v
	case StdIOTestCase:
		v.ID = id
		return v
	case StandardTestCase:
		v.ID = id
		return v
	case HookTestCase:
		v.ID = id
		return v
	}
	return tc
}

func allowedKinds(t Type) []Kind {
	switch t {
	case TypeMCQ, TypeMCC:
		return []Kind{KindMCQ}
	case TypeInteger:
		return []Kind{KindInteger}
	case TypeFloat:
		return []Kind{KindFloat}
	case TypeString:
		return []Kind{KindString}
	case TypeArrange:
		return []Kind{KindArrange}
	case TypeCode:
		return []Kind{KindStdIO, KindStandard, KindHook}
	default:
		return nil
	}
}

func validateTestCases(t Type, cases []TestCase) error {
	if t == TypeUpload {
		return nil
	}
	if len(cases) == 0 {
		return fmt.Errorf("%w: %s question has no test cases", ErrInvalidQuestion, t)
	}
	allowed := allowedKinds(t)
	correct := 0
	for _, tc := range cases {
		ok := false
		for _, k := range allowed {
			if tc.Kind() == k {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("%w: %s test case on %s question", ErrInvalidQuestion, tc.Kind(), t)
		}
		switch v := tc.(type) {
		case MCQTestCase:
			if v.Correct {
				correct++
			}
		case FloatTestCase:
			if v.ErrorMargin < 0 {
				return fmt.Errorf("%w: negative error margin", ErrInvalidQuestion)
			}
		case StringTestCase:
			switch v.Check {
			case "", CheckExact, CheckLower, CheckTrim:
			default:
				return fmt.Errorf("%w: unknown string check %q", ErrInvalidQuestion, v.Check)
			}
		}
	}
	switch t {
	case TypeMCQ:
		if correct != 1 {
			return fmt.Errorf("%w: mcq needs exactly one correct option", ErrInvalidQuestion)
		}
	case TypeMCC:
		if correct == 0 {
			return fmt.Errorf("%w: mcc needs at least one correct option", ErrInvalidQuestion)
		}
	}
	return nil
}
