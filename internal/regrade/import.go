package regrade

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"quizengine/internal/exam"

	"github.com/xuri/excelize/v2"
)

var ErrInvalidSheet = errors.New("invalid marks sheet")

type MarkImportRowError struct {
	Row        int    `json:"row"`
	UserID     int64  `json:"user_id,omitempty"`
	QuestionID int64  `json:"question_id,omitempty"`
	Error      string `json:"error"`
}

type MarkImportReport struct {
	TotalRows   int                  `json:"total_rows"`
	SuccessRows int                  `json:"success_rows"`
	FailedRows  int                  `json:"failed_rows"`
	Errors      []MarkImportRowError `json:"errors"`
}

func (r *MarkImportReport) fail(row int, userID, questionID int64, msg string) {
	r.FailedRows++
	r.Errors = append(r.Errors, MarkImportRowError{Row: row, UserID: userID, QuestionID: questionID, Error: msg})
}

// ImportMarks applies manual marks from the first sheet of an xlsx upload.
// Columns user_id, question_id and marks are required; comment is optional.
// Each row grades the user's latest attempt at the question paper.
func (a *Aggregator) ImportMarks(ctx context.Context, questionPaperID, gradedBy int64, r io.Reader) (*MarkImportReport, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: open excel: %v", ErrInvalidSheet, err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: excel sheet is empty", ErrInvalidSheet)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("%w: no data rows found", ErrInvalidSheet)
	}

	header := map[string]int{}
	for i, h := range rows[0] {
		header[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range []string{"user_id", "question_id", "marks"} {
		if _, ok := header[col]; !ok {
			return nil, fmt.Errorf("%w: missing required column: %s", ErrInvalidSheet, col)
		}
	}

	papers, err := a.store.ListPapers(ctx, exam.PaperFilter{QuestionPaperID: questionPaperID})
	if err != nil {
		return nil, fmt.Errorf("list papers: %w", err)
	}
	latest := make(map[int64]*exam.AnswerPaper, len(papers))
	for _, p := range papers {
		if cur, ok := latest[p.UserID]; !ok || p.AttemptNumber > cur.AttemptNumber {
			latest[p.UserID] = p
		}
	}

	report := &MarkImportReport{Errors: make([]MarkImportRowError, 0)}
	for i := 1; i < len(rows); i++ {
		rowNo := i + 1
		row := rows[i]
		get := func(key string) string {
			idx, ok := header[key]
			if !ok || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}
		if get("user_id") == "" && get("question_id") == "" && get("marks") == "" {
			continue
		}
		report.TotalRows++

		userID, errU := strconv.ParseInt(get("user_id"), 10, 64)
		questionID, errQ := strconv.ParseInt(get("question_id"), 10, 64)
		marks, errM := strconv.ParseFloat(get("marks"), 64)
		if errU != nil || errQ != nil || errM != nil || userID <= 0 || questionID <= 0 {
			report.fail(rowNo, userID, questionID, "user_id/question_id/marks invalid")
			continue
		}
		p, ok := latest[userID]
		if !ok {
			report.fail(rowNo, userID, questionID, "no attempt for user")
			continue
		}
		if _, err := a.ManualGrade(ctx, ManualGradeInput{
			PaperID:    p.ID,
			QuestionID: questionID,
			Marks:      marks,
			Comment:    get("comment"),
			GradedBy:   gradedBy,
		}); err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			report.fail(rowNo, userID, questionID, err.Error())
			continue
		}
		report.SuccessRows++
	}
	return report, nil
}
