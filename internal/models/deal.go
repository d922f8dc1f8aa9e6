package models

import (
	"errors"
	"time"
)

var (
	// ErrDealExists is returned when attempting to create a deal that already exists.
	ErrDealExists   = errors.New("deal already exists")
	// ErrDealNotFound is returned when a deal id does not resolve to a stored deal.
	ErrDealNotFound = errors.New("deal not found")
	// ErrValidation wraps every input rejection so callers can tell it apart from storage failures.
	ErrValidation   = errors.New("validation failed")
)

// Platform is where the sponsored content is published.
type Platform string

const (
	PlatformInstagram       Platform = "Instagram"
	PlatformTikTok          Platform = "TikTok"
	PlatformYouTube         Platform = "YouTube"
	PlatformEmailNewsletter Platform = "Email Newsletter"
	PlatformOther           Platform = "Other"
)

// Platforms lists every supported platform.
var Platforms = []Platform{PlatformInstagram, PlatformTikTok, PlatformYouTube, PlatformEmailNewsletter, PlatformOther}

func (p Platform) Valid() bool {
	for _, v := range Platforms {
		if p == v {
			return true
		}
	}
	return false
}

// Status is the pipeline stage of a deal. Statuses are listed in workflow order.
type Status string

const (
	StatusDiscovery   Status = "Discovery"
	StatusOutreach    Status = "Outreach"
	StatusReplied     Status = "Replied"
	StatusNegotiating Status = "Negotiating"
	StatusSecured     Status = "Secured"
	StatusGhosted     Status = "Ghosted"
)

// Statuses lists every pipeline stage in workflow order.
var Statuses = []Status{StatusDiscovery, StatusOutreach, StatusReplied, StatusNegotiating, StatusSecured, StatusGhosted}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// Terminal reports whether the stage ends follow-up tracking.
func (s Status) Terminal() bool {
	return s == StatusSecured || s == StatusGhosted
}

// Deal is one brand sponsorship negotiation.
type Deal struct {
	ID                   string               `firestore:"-" json:"id"`
	OwnerID              string               `firestore:"ownerId" json:"ownerId" validate:"required"`
	BrandName            string               `firestore:"brandName" json:"brandName" validate:"required,max=200"`
	Platform             Platform             `firestore:"platform" json:"platform" validate:"required,platform"`
	Contact              string               `firestore:"contact" json:"contact"`
	Status               Status               `firestore:"status" json:"status" validate:"required,status"`
	DealValue            *float64             `firestore:"dealValue" json:"dealValue,omitempty" validate:"omitempty,gte=0"`
	LastContactedAt      time.Time            `firestore:"lastContactedAt" json:"lastContactedAt"`
	NextFollowUpAt       time.Time            `firestore:"nextFollowUpAt" json:"nextFollowUpAt"`
	FollowUpIntervalDays int                  `firestore:"followUpIntervalDays" json:"followUpIntervalDays" validate:"gte=1,lte=365"`
	FollowUpCount        int                  `firestore:"followUpCount" json:"followUpCount" validate:"gte=0"`
	Notes                string               `firestore:"notes" json:"notes"`
	RateCheck            *RateCheckResult     `firestore:"rateCheck" json:"rateCheck,omitempty"`
	BriefAnalysis        *BriefAnalysisResult `firestore:"briefAnalysis" json:"briefAnalysis,omitempty"`
	Timeline             []TimelineEvent      `firestore:"timeline" json:"timeline"`
	CreatedAt            time.Time            `firestore:"createdAt" json:"createdAt"`
	UpdatedAt            time.Time            `firestore:"updatedAt" json:"updatedAt"`
}

// NewDeal is the caller-supplied part of a deal at creation time.
// Status defaults to Discovery and FollowUpIntervalDays to the configured default when zero.
type NewDeal struct {
	BrandName            string   `json:"brandName" validate:"required,max=200"`
	Platform             Platform `json:"platform" validate:"required,platform"`
	Contact              string   `json:"contact" validate:"max=500"`
	Status               Status   `json:"status" validate:"omitempty,status"`
	DealValue            *float64 `json:"dealValue,omitempty" validate:"omitempty,gte=0"`
	FollowUpIntervalDays int      `json:"followUpIntervalDays" validate:"gte=0,lte=365"`
	Notes                string   `json:"notes"`
}

// DealUpdate is a partial update. Nil fields are left untouched.
type DealUpdate struct {
	BrandName            *string
	Platform             *Platform
	Contact              *string
	Status               *Status
	DealValue            *float64
	ClearDealValue       bool
	LastContactedAt      *time.Time
	NextFollowUpAt       *time.Time
	FollowUpIntervalDays *int
	FollowUpCount        *int
	Notes                *string
	RateCheck            *RateCheckResult
	BriefAnalysis        *BriefAnalysisResult
}

// Empty reports whether the update would change nothing.
func (u DealUpdate) Empty() bool {
	return u.BrandName == nil && u.Platform == nil && u.Contact == nil && u.Status == nil &&
		u.DealValue == nil && !u.ClearDealValue && u.LastContactedAt == nil && u.NextFollowUpAt == nil &&
		u.FollowUpIntervalDays == nil && u.FollowUpCount == nil && u.Notes == nil &&
		u.RateCheck == nil && u.BriefAnalysis == nil
}

// Apply copies the set fields of u onto d.
func (u DealUpdate) Apply(d *Deal) {
	if u.BrandName != nil {
		d.BrandName = *u.BrandName
	}
	if u.Platform != nil {
		d.Platform = *u.Platform
	}
	if u.Contact != nil {
		d.Contact = *u.Contact
	}
	if u.Status != nil {
		d.Status = *u.Status
	}
	if u.ClearDealValue {
		d.DealValue = nil
	} else if u.DealValue != nil {
		v := *u.DealValue
		d.DealValue = &v
	}
	if u.LastContactedAt != nil {
		d.LastContactedAt = *u.LastContactedAt
	}
	if u.NextFollowUpAt != nil {
		d.NextFollowUpAt = *u.NextFollowUpAt
	}
	if u.FollowUpIntervalDays != nil {
		d.FollowUpIntervalDays = *u.FollowUpIntervalDays
	}
	if u.FollowUpCount != nil {
		d.FollowUpCount = *u.FollowUpCount
	}
	if u.Notes != nil {
		d.Notes = *u.Notes
	}
	if u.RateCheck != nil {
		rc := *u.RateCheck
		d.RateCheck = &rc
	}
	if u.BriefAnalysis != nil {
		ba := *u.BriefAnalysis
		d.BriefAnalysis = &ba
	}
}

// DealDetails edits the descriptive fields of a deal. These edits are not timeline activity.
type DealDetails struct {
	BrandName            *string   `json:"brandName,omitempty" validate:"omitempty,min=1,max=200"`
	Platform             *Platform `json:"platform,omitempty" validate:"omitempty,platform"`
	Contact              *string   `json:"contact,omitempty" validate:"omitempty,max=500"`
	DealValue            *float64  `json:"dealValue,omitempty" validate:"omitempty,gte=0"`
	ClearDealValue       bool      `json:"clearDealValue,omitempty"`
	FollowUpIntervalDays *int      `json:"followUpIntervalDays,omitempty" validate:"omitempty,gte=1,lte=365"`
}

// Empty reports whether no field is set.
func (d DealDetails) Empty() bool {
	return d.BrandName == nil && d.Platform == nil && d.Contact == nil &&
		d.DealValue == nil && !d.ClearDealValue && d.FollowUpIntervalDays == nil
}
