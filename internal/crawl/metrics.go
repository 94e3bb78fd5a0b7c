package crawl

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// fetchAttempts counts fetch attempts partitioned by tier and outcome.
	fetchAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leadharvest_fetch_attempts_total",
		Help: "Fetch attempts partitioned by tier and outcome.",
	}, []string{"tier", "outcome"})

	// jobsTerminal counts jobs reaching a terminal state.
	jobsTerminal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leadharvest_jobs_terminal_total",
		Help: "Crawl jobs that reached a terminal status.",
	}, []string{"status"})

	// escalations counts tier escalations.
	escalations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leadharvest_tier_escalations_total",
		Help: "Jobs promoted to a higher fetch tier.",
	})

	// robotsBlocked counts compliance denials.
	robotsBlocked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leadharvest_robots_blocked_total",
		Help: "Fetches denied by robots.txt policy.",
	})

	// leadsUpserted counts canonical lead creates and merges.
	leadsUpserted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leadharvest_leads_upserted_total",
		Help: "Canonical lead upserts partitioned by created/merged.",
	}, []string{"op"})

	// linksDiscovered counts frontier enqueue attempts from link discovery.
	linksDiscovered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leadharvest_links_discovered_total",
		Help: "Discovered links partitioned by enqueue result.",
	}, []string{"result"})
)
