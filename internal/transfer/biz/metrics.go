package biz

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	accessDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kingshare",
		Subsystem: "access",
		Name:      "decisions_total",
		Help:      "Access evaluations by result kind.",
	}, []string{"kind"})

	downloadsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "kingshare",
		Subsystem: "downloads",
		Name:      "recorded_total",
		Help:      "Successful downloads recorded.",
	})

	transfersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "kingshare",
		Subsystem: "transfers",
		Name:      "created_total",
		Help:      "Transfers created.",
	})

	tokenCollisions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "kingshare",
		Subsystem: "tokens",
		Name:      "collisions_total",
		Help:      "Share token candidates rejected because they were taken.",
	})

	approvalDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kingshare",
		Subsystem: "approvals",
		Name:      "decisions_total",
		Help:      "Approval requests decided by outcome.",
	}, []string{"outcome"})

	notificationsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kingshare",
		Subsystem: "notifications",
		Name:      "dropped_total",
		Help:      "Notifications the dispatcher refused.",
	}, []string{"kind"})

	sweptTransfers = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "kingshare",
		Subsystem: "sweeper",
		Name:      "expired_marked_total",
		Help:      "Transfers marked EXPIRED at rest.",
	})
)
