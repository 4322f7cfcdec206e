package report

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"quizengine/internal/app/apiresp"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type reportService interface {
	SummaryByPaper(ctx context.Context, questionPaperID int64) (*PaperSummary, error)
	ExportMarks(ctx context.Context, questionPaperID int64) ([]byte, error)
}

type Handler struct {
	svc reportService
	log *zap.Logger
}

func NewHandler(svc reportService, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{svc: svc, log: log}
}

func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	id, ok := paperID(w, r)
	if !ok {
		return
	}
	out, err := h.svc.SummaryByPaper(r.Context(), id)
	if err != nil {
		h.log.Error("paper summary", zap.Int64("question_paper_id", id), zap.Error(err))
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, out)
}

func (h *Handler) ExportMarks(w http.ResponseWriter, r *http.Request) {
	id, ok := paperID(w, r)
	if !ok {
		return
	}
	b, err := h.svc.ExportMarks(r.Context(), id)
	if err != nil {
		h.log.Error("export marks", zap.Int64("question_paper_id", id), zap.Error(err))
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="marks_paper_%d.xlsx"`, id))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func paperID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}
