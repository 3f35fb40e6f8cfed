package crf

import (
	"time"

	"github.com/google/uuid"

	"github.com/edc/edc/internal/domain"
)

// CRF is a case report form filled in during a visit. CreatedOn and
// ModifiedOn are stamped by the store and never written back.
type CRF struct {
	ID            uuid.UUID  `json:"id"`
	Title         string     `json:"title"`
	FormType      int        `json:"form_type"`
	CompletedDate *time.Time `json:"completed_date,omitempty"`
	VisitID       uuid.UUID  `json:"visit_id"`
	VerifiedByID  uuid.UUID  `json:"verified_by_id"`
	CreatedOn     time.Time  `json:"created_on"`
	ModifiedOn    time.Time  `json:"modified_on"`
}

func (c *CRF) Key() uuid.UUID { return c.ID }

func (c *CRF) Clone() *CRF {
	out := *c
	if c.CompletedDate != nil {
		d := *c.CompletedDate
		out.CompletedDate = &d
	}
	return &out
}

func (c *CRF) Validate() error {
	return domain.Required("title", c.Title)
}

// NewDraft returns the empty form the editor opens with in create mode.
func NewDraft() *CRF {
	return &CRF{Title: ""}
}

type ItemStatus int

const (
	ItemPending  ItemStatus = 1
	ItemEntered  ItemStatus = 2
	ItemVerified ItemStatus = 3
)

func (s ItemStatus) String() string {
	switch s {
	case ItemPending:
		return "Pending"
	case ItemEntered:
		return "Entered"
	case ItemVerified:
		return "Verified"
	}
	return "Unknown"
}

// Item is a single captured field of a CRF.
type Item struct {
	ID         uuid.UUID  `json:"id"`
	FieldName  string     `json:"field_name"`
	FieldValue *string    `json:"field_value,omitempty"`
	Units      *string    `json:"units,omitempty"`
	Status     ItemStatus `json:"status"`
	CRFID      uuid.UUID  `json:"crf_id"`
	CreatedOn  time.Time  `json:"created_on"`
	ModifiedOn time.Time  `json:"modified_on"`
}

func (i *Item) Key() uuid.UUID { return i.ID }

func (i *Item) Clone() *Item {
	out := *i
	if i.FieldValue != nil {
		v := *i.FieldValue
		out.FieldValue = &v
	}
	if i.Units != nil {
		u := *i.Units
		out.Units = &u
	}
	return &out
}

func (i *Item) Validate() error {
	return domain.Required("field_name", i.FieldName)
}

// NewItemDraft returns the placeholder bound by the item dialog.
func NewItemDraft(crfID uuid.UUID) *Item {
	return &Item{FieldName: "", CRFID: crfID}
}
