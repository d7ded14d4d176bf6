package alerts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/bannerdesk/banner-service/internal/database"
)

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestDaysUntilDeadline(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Skip("tzdata not available")
	}
	now := time.Date(2025, 6, 10, 9, 30, 0, 0, tokyo)

	tests := []struct {
		name     string
		deadline *time.Time
		want     int
	}{
		{"no deadline", nil, NoDeadline},
		{"today", date(2025, 6, 10), 0},
		{"tomorrow", date(2025, 6, 11), 1},
		{"yesterday", date(2025, 6, 9), -1},
		{"next month", date(2025, 7, 10), 30},
		{"far past", date(2025, 1, 1), -160},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DaysUntilDeadline(tt.deadline, now, tokyo))
		})
	}
}

func TestDaysUntilDeadlineUsesLocalToday(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Skip("tzdata not available")
	}
	// 2025-06-10 20:00 UTC is already 2025-06-11 in Tokyo.
	now := time.Date(2025, 6, 10, 20, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, DaysUntilDeadline(date(2025, 6, 11), now, tokyo))
	assert.Equal(t, 1, DaysUntilDeadline(date(2025, 6, 11), now, time.UTC))
}

func TestEvaluate(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	th := DefaultThresholds()

	tests := []struct {
		name    string
		product database.Product
		alerted bool
		tier    Tier
		reason  Reason
	}{
		{
			name:    "overdue without comments",
			product: database.Product{Deadline: date(2025, 6, 9)},
			alerted: true,
			tier:    TierOverdue,
			reason:  ReasonDeadlineBreach,
		},
		{
			name:    "overdue with comments reports the breach",
			product: database.Product{Deadline: date(2025, 6, 1), UnreadCommentsCount: 2},
			alerted: true,
			tier:    TierOverdue,
			reason:  ReasonDeadlineBreach,
		},
		{
			name:    "future deadline with unread comments",
			product: database.Product{Deadline: date(2025, 6, 20), UnreadCommentsCount: 3},
			alerted: true,
			tier:    TierNormal,
			reason:  ReasonNewComment,
		},
		{
			name:    "due today is critical but not alerted",
			product: database.Product{Deadline: date(2025, 6, 10)},
			tier:    TierCritical,
		},
		{
			name:    "warning boundary",
			product: database.Product{Deadline: date(2025, 6, 12)},
			tier:    TierCritical,
		},
		{
			name:    "attention boundary",
			product: database.Product{Deadline: date(2025, 6, 15)},
			tier:    TierAttention,
		},
		{
			name:    "no deadline",
			product: database.Product{},
			tier:    TierNormal,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := Evaluate(&tt.product, now, th, time.UTC)
			assert.Equal(t, tt.alerted, e.Alerted)
			assert.Equal(t, tt.tier, e.Tier)
			assert.Equal(t, tt.tier.Label(), e.TierLabel)
			assert.Equal(t, tt.reason, e.Reason)
		})
	}
}

func TestOverdueTierIgnoresThresholds(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	e := Evaluate(&database.Product{Deadline: date(2025, 6, 9)}, now, Thresholds{WarningDays: 0, AttentionDays: 0}, time.UTC)
	assert.Equal(t, TierOverdue, e.Tier)
	assert.Equal(t, "最優先", e.TierLabel)
}

func TestReasonFallback(t *testing.T) {
	assert.Equal(t, ReasonNeedsConfirmation, reasonFor(false, 0))
}

func TestThresholdsValidate(t *testing.T) {
	assert.NoError(t, DefaultThresholds().Validate())
	assert.Error(t, Thresholds{WarningDays: 6, AttentionDays: 5}.Validate())
	assert.Error(t, Thresholds{WarningDays: -1, AttentionDays: 5}.Validate())
}
