// Package metrics exposes Prometheus instrumentation for the bot.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nkorotkov/refbot/internal/storage"
)

var (
	botCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_commands_total",
			Help: "Total number of bot commands received labeled by command and status",
		},
		[]string{"command", "status"},
	)
	commandDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "command_duration_seconds",
			Help:    "Duration of bot commands in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)
	referralOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referral_outcomes_total",
			Help: "Total number of processed referral events labeled by outcome",
		},
		[]string{"outcome"},
	)
	rewardTxRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reward_tx_retries_total",
			Help: "Total number of reward transaction retries caused by commit conflicts",
		},
	)
	usersTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "users_total",
			Help: "Current number of user records",
		},
	)
	referralRewardsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "referral_rewards_total",
			Help: "Current number of referral reward ledger entries",
		},
	)
	coinsGrantedTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "coins_granted_total",
			Help: "Total coins granted through referral rewards",
		},
	)
)

// RecordCommand increments command counters and records duration.
func RecordCommand(command, status string, duration time.Duration) {
	if command == "" {
		command = "unknown"
	}
	if status == "" {
		status = "unknown"
	}

	botCommandsTotal.WithLabelValues(command, status).Inc()
	commandDurationSeconds.WithLabelValues(command).Observe(duration.Seconds())
}

// RecordReferralOutcome counts one processed referral event.
func RecordReferralOutcome(outcome string) {
	if outcome == "" {
		outcome = "error"
	}

	referralOutcomesTotal.WithLabelValues(outcome).Inc()
}

// RecordRewardTxRetry counts one conflicted reward transaction attempt.
func RecordRewardTxRetry() {
	rewardTxRetriesTotal.Inc()
}

// StatsCollector periodically polls store aggregates and emits gauges.
type StatsCollector struct {
	store    storage.Store
	interval time.Duration
}

// NewStatsCollector builds a collector bound to the provided store.
func NewStatsCollector(store storage.Store, interval time.Duration) *StatsCollector {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	return &StatsCollector{store: store, interval: interval}
}

// Run polls the store until ctx is cancelled.
func (c *StatsCollector) Run(ctx context.Context) {
	if c == nil || c.store == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		_ = c.collect(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.interval):
		}
	}
}

func (c *StatsCollector) collect(ctx context.Context) error {
	stats, err := c.store.Stats(ctx)
	if err != nil {
		return err
	}

	usersTotal.Set(float64(stats.Users))
	referralRewardsTotal.Set(float64(stats.Rewards))
	coinsGrantedTotal.Set(float64(stats.CoinsGranted))

	return nil
}
