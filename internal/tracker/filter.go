package tracker

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pauljones0/creator-deal-tracker/internal/followup"
	"github.com/pauljones0/creator-deal-tracker/internal/models"
)

// QuickFilter is a one-tap board filter.
type QuickFilter string

const (
	QuickNone        QuickFilter = ""
	QuickFollowUp    QuickFilter = "followup"
	QuickNegotiating QuickFilter = "negotiating"
)

// SortOrder orders the board.
type SortOrder string

const (
	SortRecent SortOrder = "recent"
	SortValue  SortOrder = "value"
)

// Filter narrows a deal board. Zero values match everything.
type Filter struct {
	Search   string
	Platform models.Platform
	Status   models.Status
	Quick    QuickFilter
	Sort     SortOrder
}

func (f Filter) Validate() error {
	if f.Platform != "" && !f.Platform.Valid() {
		return fmt.Errorf("%w: unknown platform %q", models.ErrValidation, f.Platform)
	}
	if f.Status != "" && !f.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", models.ErrValidation, f.Status)
	}
	switch f.Quick {
	case QuickNone, QuickFollowUp, QuickNegotiating:
	default:
		return fmt.Errorf("%w: unknown quick filter %q", models.ErrValidation, f.Quick)
	}
	switch f.Sort {
	case "", SortRecent, SortValue:
	default:
		return fmt.Errorf("%w: unknown sort %q", models.ErrValidation, f.Sort)
	}
	return nil
}

// Active reports whether any narrowing criterion is set.
func (f Filter) Active() bool {
	return f.Search != "" || f.Platform != "" || f.Status != "" || f.Quick != QuickNone
}

// Apply returns the matching deals in board order. deals is not modified.
func (f Filter) Apply(deals []models.Deal, now time.Time) []models.Deal {
	search := strings.ToLower(strings.TrimSpace(f.Search))

	out := make([]models.Deal, 0, len(deals))
	for _, d := range deals {
		if search != "" &&
			!strings.Contains(strings.ToLower(d.BrandName), search) &&
			!strings.Contains(strings.ToLower(d.Contact), search) {
			continue
		}
		if f.Platform != "" && d.Platform != f.Platform {
			continue
		}
		if f.Status != "" && d.Status != f.Status {
			continue
		}
		switch f.Quick {
		case QuickFollowUp:
			if !followup.IsOverdue(d, now) {
				continue
			}
		case QuickNegotiating:
			if d.Status != models.StatusNegotiating {
				continue
			}
		}
		out = append(out, d)
	}

	if f.Sort == SortValue {
		sort.SliceStable(out, func(i, j int) bool {
			return dealValue(out[i]) > dealValue(out[j])
		})
	} else {
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].LastContactedAt.After(out[j].LastContactedAt)
		})
	}
	return out
}

func dealValue(d models.Deal) float64 {
	if d.DealValue == nil {
		return 0
	}
	return *d.DealValue
}
