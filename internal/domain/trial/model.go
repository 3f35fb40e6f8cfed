package trial

import (
	"time"

	"github.com/google/uuid"

	"github.com/edc/edc/internal/domain"
)

// UnknownName is shown for a subject whose trial is not loaded.
const UnknownName = "Unknown Trial"

// Trial maps to the store's trial kind.
type Trial struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	Sponsor   *string    `json:"sponsor,omitempty"`
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
}

func (t *Trial) Key() uuid.UUID { return t.ID }

// Clone returns a copy that shares no pointers with t.
func (t *Trial) Clone() *Trial {
	c := *t
	if t.Sponsor != nil {
		s := *t.Sponsor
		c.Sponsor = &s
	}
	if t.StartDate != nil {
		d := *t.StartDate
		c.StartDate = &d
	}
	if t.EndDate != nil {
		d := *t.EndDate
		c.EndDate = &d
	}
	return &c
}

// Validate checks the fields a store write depends on.
func (t *Trial) Validate() error {
	if err := domain.Required("name", t.Name); err != nil {
		return err
	}
	if t.StartDate != nil && t.EndDate != nil && t.EndDate.Before(*t.StartDate) {
		return domain.Invalid("end_date", "must not be before start_date")
	}
	return nil
}

// NewDraft returns the placeholder the create dialog binds to.
func NewDraft() *Trial {
	return &Trial{Name: ""}
}

// NameOf returns the name of the trial with the given id among trials.
func NameOf(trials []*Trial, id uuid.UUID) string {
	for _, t := range trials {
		if t.ID == id {
			return t.Name
		}
	}
	return UnknownName
}
