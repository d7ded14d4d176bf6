package workflow

import (
	"slices"

	"github.com/bannerdesk/banner-service/internal/database"
	"github.com/bannerdesk/banner-service/internal/identity"
	"github.com/bannerdesk/banner-service/internal/policy"
)

// statusPriority orders statuses by how urgently they need attention.
var statusPriority = map[database.ImageStatus]int{
	database.StatusRejected:      0,
	database.StatusPendingReview: 1,
	database.StatusRevising:      2,
	database.StatusDraft:         3,
	database.StatusApproved:      4,
}

// Priority returns the urgency rank of s; lower is more urgent. Images
// without a version rank last.
func Priority(s database.ImageStatus) int {
	if p, ok := statusPriority[s]; ok {
		return p
	}
	return len(statusPriority)
}

// CurrentStatus is the status of the image's latest version, or "" when it
// has none. Older versions never affect it.
func CurrentStatus(img *database.ImageEntity) database.ImageStatus {
	if cur := img.Current(); cur != nil {
		return cur.Status
	}
	return ""
}

// SortByUrgency orders images by the priority of their current status and
// then by the current version's creation time, newest first.
func SortByUrgency(images []database.ImageEntity) {
	slices.SortStableFunc(images, func(a, b database.ImageEntity) int {
		pa, pb := Priority(CurrentStatus(&a)), Priority(CurrentStatus(&b))
		if pa != pb {
			return pa - pb
		}
		ca, cb := a.Current(), b.Current()
		switch {
		case ca == nil && cb == nil:
			return 0
		case ca == nil:
			return 1
		case cb == nil:
			return -1
		}
		return cb.CreatedAt.Compare(ca.CreatedAt)
	})
}

// isReviewDecision reports whether moving to s is a review outcome rather
// than a submission.
func isReviewDecision(s database.ImageStatus) bool {
	return s == database.StatusApproved || s == database.StatusRejected || s == database.StatusRevising
}

// CanSetStatus reports whether u may move a version of an image owned by t
// from status from into status to. Review decisions, and undoing an approval
// or rejection, need approval rights; other moves back to draft or pending
// review are also open to uploaders.
func CanSetStatus(u *identity.User, t policy.Target, from, to database.ImageStatus) bool {
	if isReviewDecision(to) || from == database.StatusApproved || from == database.StatusRejected {
		return policy.CanApprove(u, t)
	}
	return policy.CanApprove(u, t) || policy.CanUpload(u)
}
