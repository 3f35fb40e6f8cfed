package visit

import (
	"time"

	"github.com/google/uuid"

	"github.com/edc/edc/internal/domain"
)

type Status int

const (
	StatusPlanned    Status = 1
	StatusInProgress Status = 2
	StatusCompleted  Status = 3
)

func (s Status) String() string {
	switch s {
	case StatusPlanned:
		return "Planned"
	case StatusInProgress:
		return "In Progress"
	case StatusCompleted:
		return "Completed"
	}
	return "Unknown"
}

// Visit maps to the store's visit kind. SubjectID is uuid.Nil while the
// visit is unassigned.
type Visit struct {
	ID        uuid.UUID `json:"visit_id"`
	Number    *string   `json:"visit_number,omitempty"`
	Date      time.Time `json:"visit_date"`
	Status    Status    `json:"status"`
	SubjectID uuid.UUID `json:"subject_id"`
}

func (v *Visit) Key() uuid.UUID { return v.ID }

func (v *Visit) Clone() *Visit {
	c := *v
	if v.Number != nil {
		n := *v.Number
		c.Number = &n
	}
	return &c
}

func (v *Visit) Validate() error {
	if v.Date.IsZero() {
		return domain.Invalid("visit_date", "is required")
	}
	return nil
}

// NewDraft returns a planned visit dated now. The id is generated here so
// that the create dialog can bind to it and the store keeps it.
func NewDraft(now time.Time) *Visit {
	return &Visit{ID: uuid.New(), Date: now, Status: StatusPlanned}
}
