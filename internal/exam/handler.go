package exam

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"quizengine/internal/app/apiresp"
	"quizengine/internal/auth"
	"quizengine/internal/question"
	"quizengine/internal/sandbox"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type Handler struct {
	svc      attemptService
	validate *validator.Validate
	log      *zap.Logger
}

type attemptService interface {
	Start(ctx context.Context, in StartInput) (*StartResult, error)
	Get(ctx context.Context, paperID, userID int64) (*AttemptView, error)
	SubmissionStatus(ctx context.Context, paperID, userID int64) (*SubmissionStatus, error)
	Check(ctx context.Context, in CheckInput) (*CheckResult, error)
	Skip(ctx context.Context, in SkipInput) (*SkipResult, error)
	Complete(ctx context.Context, paperID, userID int64, reason string) (*AnswerPaper, error)
	Quit(ctx context.Context, paperID, userID int64, reason string) (*AnswerPaper, error)
	PollCodeResult(ctx context.Context, answerID, userID int64) (*CodeResult, error)
}

type startRequest struct {
	QuestionPaperID int64 `json:"question_paper_id" validate:"required,gt=0"`
	CourseID        int64 `json:"course_id" validate:"gte=0"`
}

type checkRequest struct {
	Answer json.RawMessage `json:"answer"`
}

type skipRequest struct {
	Code json.RawMessage `json:"code"`
}

type finishRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=64"`
}

func NewHandler(svc attemptService, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{svc: svc, validate: validator.New(), log: log}
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "question_paper_id is required")
		return
	}

	res, err := h.svc.Start(r.Context(), StartInput{
		UserID:          user.ID,
		QuestionPaperID: req.QuestionPaperID,
		CourseID:        req.CourseID,
		IP:              r.RemoteAddr,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if res.Status == StartStarted {
		status = http.StatusCreated
	}
	apiresp.WriteOK(w, r, status, res)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	user, paperID, ok := h.attemptParams(w, r)
	if !ok {
		return
	}
	view, err := h.svc.Get(r.Context(), paperID, viewerID(user))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, view)
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	user, paperID, ok := h.attemptParams(w, r)
	if !ok {
		return
	}
	st, err := h.svc.SubmissionStatus(r.Context(), paperID, viewerID(user))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, st)
}

func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	user, paperID, ok := h.attemptParams(w, r)
	if !ok {
		return
	}
	questionID, ok := pathID(w, r, "questionID")
	if !ok {
		return
	}
	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.svc.Check(r.Context(), CheckInput{PaperID: paperID, UserID: user.ID, QuestionID: questionID, Answer: req.Answer})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if res.Pending {
		status = http.StatusAccepted
	}
	apiresp.WriteOK(w, r, status, res)
}

func (h *Handler) Skip(w http.ResponseWriter, r *http.Request) {
	user, paperID, ok := h.attemptParams(w, r)
	if !ok {
		return
	}
	questionID, ok := pathID(w, r, "questionID")
	if !ok {
		return
	}
	var nextID int64
	if raw := chi.URLParam(r, "nextID"); raw != "" {
		if nextID, ok = pathID(w, r, "nextID"); !ok {
			return
		}
	}
	var req skipRequest
	if err := decodeOptional(r, &req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.svc.Skip(r.Context(), SkipInput{
		PaperID:        paperID,
		UserID:         user.ID,
		QuestionID:     questionID,
		NextQuestionID: nextID,
		Code:           req.Code,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, res)
}

func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	h.finish(w, r, h.svc.Complete)
}

func (h *Handler) Quit(w http.ResponseWriter, r *http.Request) {
	h.finish(w, r, h.svc.Quit)
}

func (h *Handler) finish(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, paperID, userID int64, reason string) (*AnswerPaper, error)) {
	user, paperID, ok := h.attemptParams(w, r)
	if !ok {
		return
	}
	var req finishRequest
	if err := decodeOptional(r, &req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "reason is too long")
		return
	}
	p, err := fn(r.Context(), paperID, user.ID, req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, map[string]interface{}{"paper": p})
}

func (h *Handler) CodeResult(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	answerID, ok := pathID(w, r, "answerID")
	if !ok {
		return
	}
	res, err := h.svc.PollCodeResult(r.Context(), answerID, viewerID(user))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, res)
}

func (h *Handler) attemptParams(w http.ResponseWriter, r *http.Request) (*auth.User, int64, bool) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return nil, 0, false
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return nil, 0, false
	}
	return user, id, true
}

// viewerID disables the owner check for staff.
func viewerID(u *auth.User) int64 {
	if u.Staff() {
		return 0
	}
	return u.ID
}

func pathID(w http.ResponseWriter, r *http.Request, key string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, key), 10, 64)
	if err != nil || id <= 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid "+key)
		return 0, false
	}
	return id, true
}

// decodeOptional accepts an empty body.
func decodeOptional(r *http.Request, dst interface{}) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var perr *PolicyError
	switch {
	case errors.As(err, &perr):
		apiresp.WriteError(w, r, http.StatusForbidden, perr.Reason)
	case errors.Is(err, ErrTimeUp):
		apiresp.WriteErrorData(w, r, http.StatusConflict, "time up", map[string]bool{"should_complete": true})
	case errors.Is(err, ErrNotInProgress), errors.Is(err, ErrDuplicateAttempt):
		apiresp.WriteError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, ErrAttemptForbidden), errors.Is(err, ErrSkipNotAllowed):
		apiresp.WriteError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, ErrAttemptNotFound),
		errors.Is(err, ErrAnswerNotFound),
		errors.Is(err, ErrQuestionNotInPaper),
		errors.Is(err, question.ErrPaperNotFound),
		errors.Is(err, question.ErrQuizNotFound),
		errors.Is(err, question.ErrQuestionNotFound):
		apiresp.WriteError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidInput):
		apiresp.WriteError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrEmptyPaper):
		apiresp.WriteError(w, r, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, sandbox.ErrUnavailable):
		apiresp.WriteError(w, r, http.StatusServiceUnavailable, "grading service unavailable, retry later")
	default:
		h.log.Error("attempt request failed", zap.String("path", r.URL.Path), zap.Error(err))
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
	}
}
