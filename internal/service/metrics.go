package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Review submission outcomes.
const (
	outcomeCreated         = "created"
	outcomeUpdated         = "updated"
	outcomeUnauthenticated = "unauthenticated"
	outcomeInvalid         = "invalid"
	outcomeNotFound        = "not_found"
	outcomeFailed          = "failed"
)

var (
	reviewSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prostore_review_submissions_total",
		Help: "Review submissions by outcome",
	}, []string{"outcome"})

	ratingRecomputations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prostore_rating_recomputations_total",
		Help: "Product rating recomputations by trigger",
	}, []string{"trigger"})

	postCommitFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prostore_post_commit_failures_total",
		Help: "Failed cache invalidations and event publications after a committed write",
	}, []string{"step"})
)
