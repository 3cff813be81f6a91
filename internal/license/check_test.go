package license

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingSource records how often it is consulted.
type countingSource struct {
	text  string
	err   error
	calls int
}

func (s *countingSource) Fetch() (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.text, nil
}

func exportedLicense(t *testing.T, codec *Codec, expires time.Time) string {
	t.Helper()
	text, err := codec.Export(context.Background(), trialRecord(expires), "")
	require.NoError(t, err)
	return text
}

func TestCheckSkipsUnguardedCommands(t *testing.T) {
	codec := newTestCodec(t)
	source := &countingSource{err: ErrNotConfigured}
	checker := NewChecker(codec, source, []string{"github-sync"})

	for _, command := range []string{"status", "help", ""} {
		result := checker.Check(context.Background(), command)
		assert.Equal(t, OutcomeSkipped, result.Outcome, "command %q", command)
	}
	assert.Zero(t, source.calls, "unguarded commands must not touch the source")
}

func TestCheckValidLicense(t *testing.T) {
	codec := newTestCodec(t)
	source := &countingSource{text: exportedLicense(t, codec, date(2026, 12, 31))}
	checker := NewChecker(codec, source, []string{"github-sync"},
		WithClock(func() time.Time { return date(2026, 6, 1) }))

	result := checker.Check(context.Background(), "github-sync")
	assert.Equal(t, OutcomeValid, result.Outcome)
	require.NotNil(t, result.Record)
	assert.NoError(t, result.Err)
	assert.Equal(t, 1, source.calls)
}

func TestCheckExpiredLicense(t *testing.T) {
	codec := newTestCodec(t)
	source := &countingSource{text: exportedLicense(t, codec, date(2026, 6, 15))}

	testCases := []struct {
		name    string
		now     time.Time
		outcome Outcome
	}{
		{name: "day before expiration", now: date(2026, 6, 14), outcome: OutcomeValid},
		{name: "expiration day", now: date(2026, 6, 15), outcome: OutcomeExpired},
		{name: "after expiration", now: date(2027, 1, 1), outcome: OutcomeExpired},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			checker := NewChecker(codec, source, []string{"github-sync"},
				WithClock(func() time.Time { return tc.now }))
			result := checker.Check(context.Background(), "github-sync")
			assert.Equal(t, tc.outcome, result.Outcome)
			assert.NotNil(t, result.Record)
		})
	}
}

func TestCheckUnresolved(t *testing.T) {
	codec := newTestCodec(t)

	testCases := []struct {
		name   string
		source Source
	}{
		{name: "source not configured", source: &countingSource{err: ErrNotConfigured}},
		{name: "text is not a license", source: &countingSource{text: "garbage"}},
		{name: "empty static source", source: StaticSource{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			checker := NewChecker(codec, tc.source, []string{"github-sync"})
			result := checker.Check(context.Background(), "github-sync")
			assert.Equal(t, OutcomeUnresolved, result.Outcome)
			assert.Error(t, result.Err)
		})
	}
}

func TestCheckUnresolvedOnWrongKey(t *testing.T) {
	issuer := newTestCodec(t)
	verifier := newTestCodec(t)

	source := &countingSource{text: exportedLicense(t, issuer, date(2026, 12, 31))}
	checker := NewChecker(verifier, source, []string{"github-sync"})

	result := checker.Check(context.Background(), "github-sync")
	assert.Equal(t, OutcomeUnresolved, result.Outcome)
	assert.Error(t, result.Err)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "skipped", OutcomeSkipped.String())
	assert.Equal(t, "valid", OutcomeValid.String())
	assert.Equal(t, "expired", OutcomeExpired.String())
	assert.Equal(t, "unresolved", OutcomeUnresolved.String())
	assert.Equal(t, "unknown", Outcome(99).String())
}

func TestRenewal(t *testing.T) {
	now := date(2026, 6, 1)

	testCases := []struct {
		name         string
		record       *Record
		status       string
		daysLeft     int
		needsRenewal bool
		isExpired    bool
	}{
		{
			name:     "active well before expiration",
			record:   trialRecord(date(2026, 12, 31)),
			status:   "active",
			daysLeft: 213,
		},
		{
			name:         "expiring inside the warning window",
			record:       trialRecord(date(2026, 6, 20)),
			status:       "expiring",
			daysLeft:     19,
			needsRenewal: true,
		},
		{
			name:         "expired",
			record:       trialRecord(date(2026, 5, 1)),
			status:       "expired",
			needsRenewal: true,
			isExpired:    true,
		},
		{
			name:   "no expiration date",
			record: NewRecord(map[string]any{AttrType: "trial"}, DefaultSchema()),
			status: "unknown",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			info := Renewal(tc.record, now)
			assert.Equal(t, tc.status, info.Status)
			assert.Equal(t, tc.daysLeft, info.DaysLeft)
			assert.Equal(t, tc.needsRenewal, info.NeedsRenewal)
			assert.Equal(t, tc.isExpired, info.IsExpired)
			assert.NotEmpty(t, info.Message)
		})
	}
}
