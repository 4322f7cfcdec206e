package exam

import "github.com/prometheus/client_golang/prometheus"

var (
	AttemptsStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_attempts_started_total",
			Help: "Attempt start requests by outcome",
		},
		[]string{"status"},
	)

	AnswersChecked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_answers_checked_total",
			Help: "Checked answers by question type and grading reason",
		},
		[]string{"type", "reason"},
	)

	AttemptsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_attempts_finished_total",
			Help: "Attempts that reached a terminal status",
		},
		[]string{"status", "reason"},
	)

	PendingSwept = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quiz_pending_code_answers_resolved_total",
			Help: "Code answers resolved by the background sweep",
		},
	)
)

// RegisterMetrics adds the attempt collectors to reg.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(AttemptsStarted, AnswersChecked, AttemptsFinished, PendingSwept)
}
