package regrade

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"quizengine/internal/app/apiresp"
	"quizengine/internal/auth"
	"quizengine/internal/exam"
	"quizengine/internal/question"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const maxImportBytes = 10 << 20

type Handler struct {
	jobs     jobService
	grader   gradeService
	validate *validator.Validate
	log      *zap.Logger
}

type jobService interface {
	Submit(ctx context.Context, scope Scope, requestedBy int64) (*Job, error)
	Status(ctx context.Context, id string) (*Job, error)
}

type gradeService interface {
	ManualGrade(ctx context.Context, in ManualGradeInput) (*exam.AnswerPaper, error)
	ImportMarks(ctx context.Context, questionPaperID, gradedBy int64, r io.Reader) (*MarkImportReport, error)
}

func NewHandler(jobs jobService, grader gradeService, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{jobs: jobs, grader: grader, validate: validator.New(), log: log}
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	var scope Scope
	if err := json.NewDecoder(r.Body).Decode(&scope); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(scope); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, ErrInvalidScope.Error())
		return
	}
	job, err := h.jobs.Submit(r.Context(), scope, user.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusAccepted, job)
}

func (h *Handler) JobStatus(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.Status(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, job)
}

func (h *Handler) Grade(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	paperID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || paperID <= 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid id")
		return
	}
	questionID, err := strconv.ParseInt(chi.URLParam(r, "questionID"), 10, 64)
	if err != nil || questionID <= 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid questionID")
		return
	}

	var in ManualGradeInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(in); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "marks must not be negative")
		return
	}
	in.PaperID = paperID
	in.QuestionID = questionID
	in.GradedBy = user.ID

	p, err := h.grader.ManualGrade(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, map[string]interface{}{
		"answerpaper_id": p.ID,
		"marks_obtained": p.MarksObtained,
		"percent":        p.Percent,
		"passed":         p.Passed,
	})
}

func (h *Handler) ImportMarks(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	questionPaperID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || questionPaperID <= 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid id")
		return
	}
	if err := r.ParseMultipartForm(maxImportBytes); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	report, err := h.grader.ImportMarks(r.Context(), questionPaperID, user.ID, file)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, report)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidScope), errors.Is(err, ErrInvalidSheet):
		apiresp.WriteError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrJobNotFound),
		errors.Is(err, exam.ErrAttemptNotFound),
		errors.Is(err, exam.ErrQuestionNotInPaper),
		errors.Is(err, question.ErrQuestionNotFound):
		apiresp.WriteError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNoAnswer):
		apiresp.WriteError(w, r, http.StatusUnprocessableEntity, err.Error())
	default:
		h.log.Error("regrade request failed", zap.String("path", r.URL.Path), zap.Error(err))
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
	}
}
