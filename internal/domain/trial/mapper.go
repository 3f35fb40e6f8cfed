package trial

import (
	"github.com/edc/edc/internal/domain"
	"github.com/edc/edc/internal/platform/store"
)

// Store columns of the trial kind.
const (
	ColID        = "id"
	ColName      = "name"
	ColSponsor   = "sponsor"
	ColStartDate = "startDate"
	ColEndDate   = "endDate"
)

// Columns are the readable columns besides the id.
var Columns = []string{ColName, ColSponsor, ColStartDate, ColEndDate}

var codec = domain.Codec[*Trial]{Kind: store.KindTrial, Columns: Columns, ToModel: ToModel}

// ToModel maps a store record to a Trial. Absent optional columns stay nil.
func ToModel(r store.Record) *Trial {
	return &Trial{
		ID:        r.ID(ColID),
		Name:      r.String(ColName),
		Sponsor:   r.StringPtr(ColSponsor),
		StartDate: r.TimePtr(ColStartDate),
		EndDate:   r.TimePtr(ColEndDate),
	}
}

// ToPayload returns the full writable field set. Unset optional fields are
// sent as nil so that an update clears them.
func ToPayload(t *Trial) store.Fields {
	f := store.Fields{
		ColName:      t.Name,
		ColSponsor:   nil,
		ColStartDate: nil,
		ColEndDate:   nil,
	}
	if t.Sponsor != nil {
		f[ColSponsor] = *t.Sponsor
	}
	if t.StartDate != nil {
		f[ColStartDate] = t.StartDate.UTC()
	}
	if t.EndDate != nil {
		f[ColEndDate] = t.EndDate.UTC()
	}
	return f
}
