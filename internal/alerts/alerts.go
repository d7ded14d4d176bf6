// Package alerts derives the "needs attention" list from product deadlines
// and unread comment counters. Nothing here is stored; every read
// recomputes the list from the current catalog.
package alerts

import (
	"fmt"
	"math"
	"time"

	"github.com/bannerdesk/banner-service/internal/database"
)

// NoDeadline is the day count used for products without a deadline so
// they sort after every dated product.
const NoDeadline = 999

// Tier is the urgency bucket of a product.
type Tier string

const (
	TierOverdue   Tier = "overdue"
	TierCritical  Tier = "critical"
	TierAttention Tier = "attention"
	TierNormal    Tier = "normal"
)

// Label is the dashboard label of the tier.
func (t Tier) Label() string {
	switch t {
	case TierOverdue:
		return "最優先"
	case TierCritical:
		return "緊急"
	case TierAttention:
		return "注意"
	default:
		return "通常"
	}
}

// Reason explains why a product is alerted.
type Reason string

const (
	ReasonDeadlineBreach    Reason = "deadline breach"
	ReasonNewComment        Reason = "new comment"
	ReasonNeedsConfirmation Reason = "needs confirmation"
)

// Thresholds are the day counts at which a deadline becomes critical or
// needs attention.
type Thresholds struct {
	WarningDays   int `mapstructure:"warning_days" json:"warningDays"`
	AttentionDays int `mapstructure:"attention_days" json:"attentionDays"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{WarningDays: 2, AttentionDays: 5}
}

func (t Thresholds) Validate() error {
	if t.WarningDays < 0 || t.AttentionDays < 0 {
		return fmt.Errorf("alert thresholds must not be negative")
	}
	if t.WarningDays > t.AttentionDays {
		return fmt.Errorf("warning_days (%d) must not exceed attention_days (%d)", t.WarningDays, t.AttentionDays)
	}
	return nil
}

// DaysUntilDeadline counts calendar days from today to the deadline date,
// both taken at midnight in loc. Past deadlines are negative.
func DaysUntilDeadline(deadline *time.Time, now time.Time, loc *time.Location) int {
	if deadline == nil {
		return NoDeadline
	}
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := deadline.Date()
	due := time.Date(y, m, d, 0, 0, 0, 0, loc)
	ny, nm, nd := now.In(loc).Date()
	today := time.Date(ny, nm, nd, 0, 0, 0, 0, loc)
	return int(math.Ceil(due.Sub(today).Hours() / 24))
}

// Evaluation is the derived alert state of one product.
type Evaluation struct {
	DaysUntilDeadline int    `json:"daysUntilDeadline"`
	Overdue           bool   `json:"overdue"`
	Alerted           bool   `json:"alerted"`
	Tier              Tier   `json:"tier"`
	TierLabel         string `json:"tierLabel"`
	// Reason is empty unless Alerted.
	Reason Reason `json:"reason,omitempty"`
}

// Evaluate computes the alert state of p at now.
func Evaluate(p *database.Product, now time.Time, th Thresholds, loc *time.Location) Evaluation {
	days := DaysUntilDeadline(p.Deadline, now, loc)
	e := Evaluation{
		DaysUntilDeadline: days,
		Overdue:           days < 0,
	}
	e.Alerted = e.Overdue || p.UnreadCommentsCount > 0

	switch {
	case e.Overdue:
		e.Tier = TierOverdue
	case days <= th.WarningDays:
		e.Tier = TierCritical
	case days <= th.AttentionDays:
		e.Tier = TierAttention
	default:
		e.Tier = TierNormal
	}
	e.TierLabel = e.Tier.Label()

	if e.Alerted {
		e.Reason = reasonFor(e.Overdue, p.UnreadCommentsCount)
	}
	return e
}

// reasonFor picks the first matching reason. The last branch covers alert
// sources other than deadlines and comments.
func reasonFor(overdue bool, unread int) Reason {
	switch {
	case overdue:
		return ReasonDeadlineBreach
	case unread > 0:
		return ReasonNewComment
	default:
		return ReasonNeedsConfirmation
	}
}
