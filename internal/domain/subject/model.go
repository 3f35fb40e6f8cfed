package subject

import (
	"time"

	"github.com/google/uuid"

	"github.com/edc/edc/internal/domain"
)

// Status is the enrolment state of a subject. Transitions are not
// validated; any code is stored as given.
type Status int

const (
	StatusScreening Status = 2
	StatusEnrolled  Status = 3
	StatusCompleted Status = 4
	StatusWithdrawn Status = 5
)

func (s Status) String() string {
	switch s {
	case StatusScreening:
		return "Screening"
	case StatusEnrolled:
		return "Enrolled"
	case StatusCompleted:
		return "Completed"
	case StatusWithdrawn:
		return "Withdrawn"
	}
	return "Unknown"
}

// NoCode is shown for a visit whose subject is not loaded.
const NoCode = "N/A"

// Subject maps to the store's subject kind.
type Subject struct {
	ID             uuid.UUID  `json:"subject_id"`
	Code           string     `json:"subject_code"`
	ScreeningDate  *time.Time `json:"screening_date,omitempty"`
	EnrollmentDate *time.Time `json:"enrollment_date,omitempty"`
	Status         Status     `json:"status"`
	TrialID        uuid.UUID  `json:"trial_id"`
}

func (s *Subject) Key() uuid.UUID { return s.ID }

func (s *Subject) Clone() *Subject {
	c := *s
	if s.ScreeningDate != nil {
		d := *s.ScreeningDate
		c.ScreeningDate = &d
	}
	if s.EnrollmentDate != nil {
		d := *s.EnrollmentDate
		c.EnrollmentDate = &d
	}
	return &c
}

func (s *Subject) Validate() error {
	if err := domain.Required("subject_code", s.Code); err != nil {
		return err
	}
	if s.TrialID == uuid.Nil {
		return domain.Invalid("trial_id", "is required")
	}
	return nil
}

// NewDraft returns the placeholder the create dialog binds to.
func NewDraft() *Subject {
	return &Subject{Code: ""}
}

// CodeOf returns the code of the subject with the given id among subjects.
func CodeOf(subjects []*Subject, id uuid.UUID) string {
	for _, s := range subjects {
		if s.ID == id {
			return s.Code
		}
	}
	return NoCode
}
