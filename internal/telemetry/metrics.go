// Package telemetry exposes the server's prometheus collectors.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsHosted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trivia_sessions_hosted_total",
		Help: "Sessions created by a host.",
	})

	sessionsEnded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trivia_sessions_ended_total",
		Help: "Sessions that reached a terminal state, by reason.",
	}, []string{"reason"})

	roundsPlayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trivia_rounds_played_total",
		Help: "Question rounds run to completion or timeout.",
	})

	answersGraded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trivia_answers_graded_total",
		Help: "Answer submissions accepted and graded, by correctness.",
	}, []string{"correct"})
)

func SessionHosted() { sessionsHosted.Inc() }

func SessionEnded(reason string) { sessionsEnded.WithLabelValues(reason).Inc() }

func RoundPlayed() { roundsPlayed.Inc() }

func AnswersGraded(correct bool) {
	if correct {
		answersGraded.WithLabelValues("true").Inc()
	} else {
		answersGraded.WithLabelValues("false").Inc()
	}
}
