package database

import (
	"slices"
	"strings"
	"time"

	"github.com/bannerdesk/banner-service/internal/identity"
)

// ImageStatus is the review status of one image version.
type ImageStatus string

const (
	StatusDraft         ImageStatus = "draft"
	StatusPendingReview ImageStatus = "pending_review"
	StatusApproved      ImageStatus = "approved"
	StatusRejected      ImageStatus = "rejected"
	StatusRevising      ImageStatus = "revising"
)

// ImageStatuses lists every status.
var ImageStatuses = []ImageStatus{StatusDraft, StatusPendingReview, StatusApproved, StatusRejected, StatusRevising}

// Valid reports whether s is a known status.
func (s ImageStatus) Valid() bool {
	return slices.Contains(ImageStatuses, s)
}

// ProjectStatus is the manually managed state of a campaign.
type ProjectStatus string

const (
	ProjectNotStarted ProjectStatus = "not_started"
	ProjectInProgress ProjectStatus = "in_progress"
	ProjectCompleted  ProjectStatus = "completed"
)

func (s ProjectStatus) Valid() bool {
	return s == ProjectNotStarted || s == ProjectInProgress || s == ProjectCompleted
}

// TemperatureRange is the shipping temperature of a product.
type TemperatureRange string

const (
	TemperatureNormal       TemperatureRange = "normal"
	TemperatureRefrigerated TemperatureRange = "refrigerated"
	TemperatureFrozen       TemperatureRange = "frozen"
)

func (t TemperatureRange) Valid() bool {
	return t == TemperatureNormal || t == TemperatureRefrigerated || t == TemperatureFrozen
}

// CommenterType identifies which side of the review posted a comment.
type CommenterType string

const (
	CommenterAdmin        CommenterType = "admin"
	CommenterMunicipality CommenterType = "municipality"
	CommenterBusiness     CommenterType = "business"
)

// CountsAsUnread reports whether a comment from this side is one the admin
// side has still to read. The unread counter behind the alert dashboard only
// tracks these.
func (t CommenterType) CountsAsUnread() bool {
	return t == CommenterMunicipality || t == CommenterBusiness
}

// CommenterTypeFor maps a role to the side it comments as.
func CommenterTypeFor(r identity.Role) CommenterType {
	switch r {
	case identity.RoleMunicipalityUser:
		return CommenterMunicipality
	case identity.RoleBusinessUser:
		return CommenterBusiness
	default:
		return CommenterAdmin
	}
}

// NormalizePortals returns the portal set as a sorted list without blanks
// or duplicates.
func NormalizePortals(portals []string) []string {
	out := make([]string, 0, len(portals))
	for _, p := range portals {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// TogglePortal adds portal to the set if absent, removes it otherwise.
func TogglePortal(portals []string, portal string) []string {
	if i := slices.Index(portals, portal); i >= 0 {
		return NormalizePortals(slices.Delete(slices.Clone(portals), i, i+1))
	}
	return NormalizePortals(append(slices.Clone(portals), portal))
}

// Municipality is the root scoping entity.
type Municipality struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"createdAt"`
}

// Business belongs to one municipality and is listed on a set of portals.
type Business struct {
	ID             int64     `json:"id"`
	MunicipalityID int64     `json:"municipalityId"`
	Name           string    `json:"name"`
	Code           string    `json:"code"`
	Category       *string   `json:"category,omitempty"`
	Portals        []string  `json:"portals"`
	ContactName    *string   `json:"contactName,omitempty"`
	ContactEmail   *string   `json:"contactEmail,omitempty"`
	ContactPhone   *string   `json:"contactPhone,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Product is a listing owned by a business, optionally grouped under a project.
type Product struct {
	ID                  int64             `json:"id"`
	BusinessID          int64             `json:"businessId"`
	ProjectID           *int64            `json:"projectId,omitempty"`
	Name                string            `json:"name"`
	Description         string            `json:"description"`
	Genre               *string           `json:"genre,omitempty"`
	ProductCode         *string           `json:"productCode,omitempty"`
	Deadline            *time.Time        `json:"deadline,omitempty"`
	UnreadCommentsCount int               `json:"unreadCommentsCount"`
	DonationAmount      *int64            `json:"donationAmount,omitempty"`
	TemperatureRange    *TemperatureRange `json:"temperatureRange,omitempty"`
	HasMaterials        *bool             `json:"hasMaterials,omitempty"`
	Portals             []string          `json:"portals"`
	CreatedAt           time.Time         `json:"createdAt"`
}

// Project groups products for a campaign. Status is set by hand.
type Project struct {
	ID                 int64         `json:"id"`
	Name               string        `json:"name"`
	MunicipalityID     int64         `json:"municipalityId"`
	Status             ProjectStatus `json:"status"`
	CollectionDeadline *time.Time    `json:"collectionDeadline,omitempty"`
	Deadline           *time.Time    `json:"deadline,omitempty"`
	CreatedAt          time.Time     `json:"createdAt"`
}

// ImageEntity is one creative asset with its full revision history.
// Versions are ordered by VersionNumber; the last one is current.
type ImageEntity struct {
	ID               int64          `json:"id"`
	ProductID        int64          `json:"productId"`
	Title            string         `json:"title"`
	ExternalURL      *string        `json:"externalUrl,omitempty"`
	CreatedByAdminID int64          `json:"createdByAdminId"`
	CreatedAt        time.Time      `json:"createdAt"`
	Versions         []ImageVersion `json:"versions"`
}

// Current returns the latest version, or nil when the image has none.
func (i *ImageEntity) Current() *ImageVersion {
	if len(i.Versions) == 0 {
		return nil
	}
	return &i.Versions[len(i.Versions)-1]
}

// Version returns the version with the given id.
func (i *ImageEntity) Version(id int64) *ImageVersion {
	for k := range i.Versions {
		if i.Versions[k].ID == id {
			return &i.Versions[k]
		}
	}
	return nil
}

// ImageVersion is one upload of an image with its own review status.
type ImageVersion struct {
	ID            int64       `json:"id"`
	ImageID       int64       `json:"imageId"`
	VersionNumber int         `json:"versionNumber"`
	FilePath      string      `json:"filePath"`
	Status        ImageStatus `json:"status"`
	SubmittedAt   time.Time   `json:"submittedAt"`
	CreatedAt     time.Time   `json:"createdAt"`
}

// Annotation marks a region or pin on the image a comment refers to.
type Annotation struct {
	X              float64 `json:"x"`
	Y              float64 `json:"y"`
	Width          float64 `json:"width"`
	Height         float64 `json:"height"`
	Path           string  `json:"path,omitempty"`
	AnnotationType string  `json:"annotationType"`
	Color          string  `json:"color,omitempty"`
	PinNumber      int     `json:"pinNumber,omitempty"`
}

// Comment is a message in an image's thread, shared by all its versions.
type Comment struct {
	ID            int64         `json:"id"`
	ImageID       int64         `json:"imageId"`
	CommenterType CommenterType `json:"commenterType"`
	CommenterID   int64         `json:"commenterId"`
	CommenterName string        `json:"commenterName"`
	Body          string        `json:"body"`
	Annotation    *Annotation   `json:"annotation,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// Notification is a system message created by upload and review events.
type Notification struct {
	ID        int64     `json:"id"`
	ImageID   *int64    `json:"imageId,omitempty"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"createdAt"`
}

// User is a dashboard account.
type User struct {
	ID             int64         `json:"id"`
	Email          string        `json:"email"`
	Name           string        `json:"name"`
	PasswordHash   string        `json:"passwordHash,omitempty"`
	Role           identity.Role `json:"role"`
	MunicipalityID *int64        `json:"municipalityId,omitempty"`
	BusinessID     *int64        `json:"businessId,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
}

// Public returns a copy without the password hash.
func (u User) Public() User {
	u.PasswordHash = ""
	return u
}

// Identity returns the user as seen by the authorization layer.
func (u *User) Identity() *identity.User {
	return &identity.User{
		ID:             u.ID,
		Role:           u.Role,
		MunicipalityID: u.MunicipalityID,
		BusinessID:     u.BusinessID,
	}
}
