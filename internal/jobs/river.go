package jobs

import (
	"log/slog"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivertype"
)

const (
	JobKindRegistrationConfirmation = "registration_confirmation"
	JobKindRegistrationCancellation = "registration_cancellation"

	QueueNotifications = "notifications"
)

const (
	NotificationMaxAttempts = 5
	defaultMaxWorkers       = 10
)

// RetryConfig controls per-kind retry behavior.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// RetryPolicy implements River's ClientRetryPolicy with per-kind exponential backoff.
type RetryPolicy struct {
	Default RetryConfig
	ByKind  map[string]RetryConfig
}

// NewRetryPolicy returns the retry policy for notification jobs. A non-positive
// maxAttempts uses NotificationMaxAttempts.
func NewRetryPolicy(maxAttempts int) *RetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = NotificationMaxAttempts
	}
	notification := RetryConfig{
		MaxAttempts: maxAttempts,
		BaseDelay:   30 * time.Second,
		MaxDelay:    15 * time.Minute,
	}
	return &RetryPolicy{
		Default: RetryConfig{
			MaxAttempts: maxAttempts,
			BaseDelay:   30 * time.Second,
			MaxDelay:    30 * time.Minute,
		},
		ByKind: map[string]RetryConfig{
			JobKindRegistrationConfirmation: notification,
			JobKindRegistrationCancellation: notification,
		},
	}
}

// NextRetry determines the next retry time for a failed job.
func (p *RetryPolicy) NextRetry(job *rivertype.JobRow) time.Time {
	config := p.configFor(job.Kind)
	if config.BaseDelay == 0 {
		return time.Now()
	}

	attempt := job.Attempt
	if attempt < 1 {
		attempt = 1
	}

	delay := time.Duration(float64(config.BaseDelay) * math.Pow(2, float64(attempt-1)))
	if config.MaxDelay > 0 && delay > config.MaxDelay {
		delay = config.MaxDelay
	}

	if job.AttemptedAt != nil {
		return job.AttemptedAt.Add(delay)
	}
	return time.Now().Add(delay)
}

// InsertOptsForKind returns default insert options for a job kind.
func InsertOptsForKind(kind string) river.InsertOpts {
	config := NewRetryPolicy(0).configFor(kind)
	return river.InsertOpts{MaxAttempts: config.MaxAttempts, Queue: QueueNotifications}
}

// ClientOptions configures the River client built by NewClient.
type ClientOptions struct {
	Workers     *river.Workers
	Logger      *slog.Logger
	Hooks       []rivertype.Hook
	MaxWorkers  int
	MaxAttempts int
	Exhausted   ExhaustedFunc
}

// NewClientConfig builds a River client configuration with retry policy.
func NewClientConfig(opts ClientOptions) *river.Config {
	policy := NewRetryPolicy(opts.MaxAttempts)
	maxWorkers := opts.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = defaultMaxWorkers
	}

	config := &river.Config{
		Workers:     opts.Workers,
		RetryPolicy: policy,
		MaxAttempts: policy.Default.MaxAttempts,
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 1},
			QueueNotifications: {MaxWorkers: maxWorkers},
		},
		Hooks: opts.Hooks,
	}
	if opts.Logger != nil {
		config.Logger = opts.Logger
		config.ErrorHandler = NewDeliveryErrorHandler(opts.Logger, opts.Exhausted)
	}
	return config
}

// NewClient creates a River client using pgx v5.
func NewClient(pool *pgxpool.Pool, opts ClientOptions) (*river.Client[pgx.Tx], error) {
	return river.NewClient(riverpgxv5.New(pool), NewClientConfig(opts))
}

func (p *RetryPolicy) configFor(kind string) RetryConfig {
	if p == nil {
		return RetryConfig{MaxAttempts: NotificationMaxAttempts, BaseDelay: 30 * time.Second, MaxDelay: 15 * time.Minute}
	}
	if config, ok := p.ByKind[kind]; ok {
		return config
	}
	return p.Default
}
