package license

import (
	"context"
	"log/slog"
	"time"
)

// Outcome is the structured result of a license check. The check itself
// decides nothing about process lifetime; the calling harness maps
// outcomes to exit codes.
type Outcome int

const (
	// OutcomeSkipped: the command is not license-gated; the source was
	// never consulted.
	OutcomeSkipped Outcome = iota
	// OutcomeValid: a license was resolved, passed validation, and has
	// not expired.
	OutcomeValid
	// OutcomeExpired: a license was resolved but its expiration date has
	// passed (or is today).
	OutcomeExpired
	// OutcomeUnresolved: no license could be resolved to a valid record:
	// missing source, framing/decrypt/parse failure, or validation
	// failure.
	OutcomeUnresolved
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeValid:
		return "valid"
	case OutcomeExpired:
		return "expired"
	case OutcomeUnresolved:
		return "unresolved"
	default:
		return "unknown"
	}
}

// CheckResult carries the outcome, the resolved record when one was
// constructed, and the error behind an unresolved outcome.
type CheckResult struct {
	Outcome Outcome
	Record  *Record
	Err     error
}

// Checker applies the license policy to command invocations: designated
// commands must present a valid, unexpired license; every other command
// passes through untouched.
type Checker struct {
	codec   *Codec
	source  Source
	guarded map[string]bool
	logger  *slog.Logger
	metrics *Metrics

	// now is swappable for expiration tests.
	now func() time.Time
}

// CheckerOption configures a Checker.
type CheckerOption func(*Checker)

// WithCheckerLogger sets the structured logger. Defaults to slog.Default.
func WithCheckerLogger(logger *slog.Logger) CheckerOption {
	return func(c *Checker) { c.logger = logger }
}

// WithCheckerMetrics wires check outcome metrics.
func WithCheckerMetrics(m *Metrics) CheckerOption {
	return func(c *Checker) { c.metrics = m }
}

// WithClock replaces the expiration clock.
func WithClock(now func() time.Time) CheckerOption {
	return func(c *Checker) { c.now = now }
}

// NewChecker creates a checker gating the named commands.
func NewChecker(codec *Codec, source Source, guardedCommands []string, opts ...CheckerOption) *Checker {
	guarded := make(map[string]bool, len(guardedCommands))
	for _, cmd := range guardedCommands {
		guarded[cmd] = true
	}
	c := &Checker{
		codec:   codec,
		source:  source,
		guarded: guarded,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(slog.String("component", "license-check"))
	return c
}

// Check resolves and evaluates the license for command. Non-guarded
// commands return OutcomeSkipped without touching the source. A missing or
// unreadable license is reported as OutcomeUnresolved, never as a crash;
// only the harness decides whether any outcome terminates the process.
func (c *Checker) Check(ctx context.Context, command string) CheckResult {
	if !c.guarded[command] {
		return CheckResult{Outcome: OutcomeSkipped}
	}

	result := c.evaluate(ctx, command)
	if c.metrics != nil {
		c.metrics.recordCheck(ctx, result.Outcome)
	}
	return result
}

func (c *Checker) evaluate(ctx context.Context, command string) CheckResult {
	text, err := c.source.Fetch()
	if err != nil {
		c.logger.WarnContext(ctx, "license could not be resolved",
			slog.String("command", command),
			slog.String("error", err.Error()),
		)
		return CheckResult{Outcome: OutcomeUnresolved, Err: err}
	}

	record, err := c.codec.Import(ctx, text)
	if err != nil {
		c.logger.ErrorContext(ctx, "license could not be read",
			slog.String("command", command),
			slog.String("stage", importStage(err)),
			slog.String("error", err.Error()),
		)
		return CheckResult{Outcome: OutcomeUnresolved, Err: err}
	}

	if err := c.codec.Schema().Validate(record); err != nil {
		c.logger.ErrorContext(ctx, "license record is invalid",
			slog.String("command", command),
			slog.String("error", err.Error()),
		)
		return CheckResult{Outcome: OutcomeUnresolved, Record: record, Err: err}
	}

	if record.Expired(c.now()) {
		exp, _ := record.ExpiresAt()
		c.logger.ErrorContext(ctx, "license has expired",
			slog.String("command", command),
			slog.String("expires_at", exp.Format(dateLayout)),
		)
		return CheckResult{Outcome: OutcomeExpired, Record: record}
	}

	return CheckResult{Outcome: OutcomeValid, Record: record}
}

// RenewalInfo summarizes how close a license is to expiring, for status
// surfaces.
type RenewalInfo struct {
	DaysLeft     int    `json:"days_left"`
	Status       string `json:"status"`
	Message      string `json:"message"`
	NeedsRenewal bool   `json:"needs_renewal"`
	IsExpired    bool   `json:"is_expired"`
}

// renewalWarningDays is the window in which a license counts as needing
// renewal.
const renewalWarningDays = 30

// Renewal derives renewal status for r at the given time. Records without
// an expiration date report an unknown status.
func Renewal(r *Record, now time.Time) RenewalInfo {
	exp, ok := r.ExpiresAt()
	if !ok {
		return RenewalInfo{Status: "unknown", Message: "license has no expiration date"}
	}

	daysLeft := int(truncateToDate(exp).Sub(truncateToDate(now)).Hours() / 24)
	switch {
	case r.Expired(now):
		return RenewalInfo{
			DaysLeft:     0,
			Status:       "expired",
			Message:      "license has expired; renew to continue",
			NeedsRenewal: true,
			IsExpired:    true,
		}
	case daysLeft <= renewalWarningDays:
		return RenewalInfo{
			DaysLeft:     daysLeft,
			Status:       "expiring",
			Message:      "license expires soon; renewal recommended",
			NeedsRenewal: true,
		}
	default:
		return RenewalInfo{
			DaysLeft: daysLeft,
			Status:   "active",
			Message:  "license is active",
		}
	}
}
