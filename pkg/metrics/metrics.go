package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "osmbc", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "osmbc", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)

	// Mutations counts ProposeUpdate outcomes: ok, conflict, validation, collaborator, error.
	Mutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "osmbc", Name: "article_mutations_total", Help: "Article update proposals by outcome."},
		[]string{"result"},
	)
	Comments = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "osmbc", Name: "article_comments_total", Help: "Comment operations by action."},
		[]string{"action"},
	)
	BacklinkSearches = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "osmbc", Name: "article_backlink_searches_total", Help: "Full-text searches issued while resolving backlinks."},
	)
	LinkExpansions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "osmbc", Name: "article_link_expansions_total", Help: "Collection URL expansions by result."},
		[]string{"result"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(Mutations)
	reg.MustRegister(Comments)
	reg.MustRegister(BacklinkSearches)
	reg.MustRegister(LinkExpansions)
}
