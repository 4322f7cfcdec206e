package report

import (
	"bytes"
	"context"
	"fmt"

	"quizengine/internal/exam"

	"github.com/xuri/excelize/v2"
)

// ExportMarks writes every attempt at a question paper to an xlsx sheet.
// The user_id column lines up with what the mark import expects.
func (s *Service) ExportMarks(ctx context.Context, questionPaperID int64) ([]byte, error) {
	papers, err := s.papers.ListPapers(ctx, exam.PaperFilter{QuestionPaperID: questionPaperID})
	if err != nil {
		return nil, fmt.Errorf("list papers: %w", err)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	sheet := f.GetSheetName(0)
	headers := []string{"answerpaper_id", "user_id", "attempt_number", "status", "marks_obtained", "total_marks", "percent", "passed", "start_time", "end_time"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for i, p := range papers {
		end := ""
		if p.EndTime != nil {
			end = p.EndTime.Format("2006-01-02 15:04:05")
		}
		values := []any{
			p.ID,
			p.UserID,
			p.AttemptNumber,
			string(p.Status),
			p.MarksObtained,
			p.TotalMarks,
			p.Percent,
			p.Passed,
			p.StartTime.Format("2006-01-02 15:04:05"),
			end,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
	_ = f.SetColWidth(sheet, "A", "J", 18)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write excel: %w", err)
	}
	return buf.Bytes(), nil
}
