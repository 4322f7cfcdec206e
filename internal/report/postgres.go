package report

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresGrades reads grade_ranges of the course's grading system and
// upserts course_grades.
type PostgresGrades struct {
	db *sql.DB
}

func NewPostgresGrades(db *sql.DB) *PostgresGrades {
	return &PostgresGrades{db: db}
}

func (g *PostgresGrades) Ranges(ctx context.Context, courseID int64) ([]GradeRange, error) {
	rows, err := g.db.QueryContext(ctx, `
		SELECT gr.lower_limit, gr.upper_limit, gr.grade
		FROM grade_ranges gr
		JOIN courses c ON c.grading_system_id = gr.grading_system_id
		WHERE c.id = $1
		ORDER BY gr.lower_limit ASC
	`, courseID)
	if err != nil {
		return nil, fmt.Errorf("query grade ranges: %w", err)
	}
	defer rows.Close()

	out := make([]GradeRange, 0, 8)
	for rows.Next() {
		var r GradeRange
		if err := rows.Scan(&r.Lower, &r.Upper, &r.Grade); err != nil {
			return nil, fmt.Errorf("scan grade range: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (g *PostgresGrades) SaveCourseGrade(ctx context.Context, cg CourseGrade) error {
	_, err := g.db.ExecContext(ctx, `
		INSERT INTO course_grades (user_id, course_id, percent, grade, papers, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, course_id)
		DO UPDATE SET percent = EXCLUDED.percent, grade = EXCLUDED.grade,
			papers = EXCLUDED.papers, updated_at = EXCLUDED.updated_at
	`, cg.UserID, cg.CourseID, cg.Percent, cg.Grade, cg.Papers, cg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert course grade: %w", err)
	}
	return nil
}
