package crf

import (
	"github.com/edc/edc/internal/domain"
	"github.com/edc/edc/internal/platform/store"
)

const (
	ColID            = "id"
	ColTitle         = "title"
	ColFormType      = "formType"
	ColCompletedDate = "completedDate"
	ColVisitRef      = "visitRef"
	ColVerifiedByRef = "verifiedByRef"
)

var Columns = []string{
	ColTitle, ColFormType, ColCompletedDate, ColVisitRef, ColVerifiedByRef,
	store.ColCreatedOn, store.ColModifiedOn,
}

var codec = domain.Codec[*CRF]{Kind: store.KindCRF, Columns: Columns, ToModel: ToModel}

func ToModel(r store.Record) *CRF {
	return &CRF{
		ID:            r.ID(ColID),
		Title:         r.String(ColTitle),
		FormType:      r.Option(ColFormType),
		CompletedDate: r.TimePtr(ColCompletedDate),
		VisitID:       r.Ref(ColVisitRef),
		VerifiedByID:  r.Ref(ColVerifiedByRef),
		CreatedOn:     r.Time(store.ColCreatedOn),
		ModifiedOn:    r.Time(store.ColModifiedOn),
	}
}

// ToPayload is the update payload. The visit and verifier references are
// not part of it.
func ToPayload(c *CRF) store.Fields {
	f := store.Fields{
		ColTitle:         c.Title,
		ColFormType:      store.Option(c.FormType),
		ColCompletedDate: nil,
	}
	if c.CompletedDate != nil {
		f[ColCompletedDate] = c.CompletedDate.UTC()
	}
	return f
}

// CreatePayload binds a new form to its visit and, when known, verifier.
func CreatePayload(c *CRF) store.Fields {
	f := ToPayload(c)
	f[ColVisitRef] = store.Ref(store.KindVisit, c.VisitID)
	f[ColVerifiedByRef] = store.Ref(store.KindUser, c.VerifiedByID)
	return f
}

const (
	ItemColID         = "id"
	ItemColFieldName  = "fieldName"
	ItemColFieldValue = "fieldValue"
	ItemColUnits      = "units"
	ItemColStatus     = "status"
	ItemColCRFRef     = "crfRef"
)

var ItemColumns = []string{
	ItemColFieldName, ItemColFieldValue, ItemColUnits, ItemColStatus, ItemColCRFRef,
	store.ColCreatedOn, store.ColModifiedOn,
}

var itemCodec = domain.Codec[*Item]{Kind: store.KindCRFItem, Columns: ItemColumns, ToModel: ItemToModel}

func ItemToModel(r store.Record) *Item {
	return &Item{
		ID:         r.ID(ItemColID),
		FieldName:  r.String(ItemColFieldName),
		FieldValue: r.StringPtr(ItemColFieldValue),
		Units:      r.StringPtr(ItemColUnits),
		Status:     ItemStatus(r.Option(ItemColStatus)),
		CRFID:      r.Ref(ItemColCRFRef),
		CreatedOn:  r.Time(store.ColCreatedOn),
		ModifiedOn: r.Time(store.ColModifiedOn),
	}
}

// ItemToPayload is the update payload; items are never re-parented.
func ItemToPayload(i *Item) store.Fields {
	f := store.Fields{
		ItemColFieldName:  i.FieldName,
		ItemColFieldValue: nil,
		ItemColUnits:      nil,
		ItemColStatus:     store.Option(int(i.Status)),
	}
	if i.FieldValue != nil {
		f[ItemColFieldValue] = *i.FieldValue
	}
	if i.Units != nil {
		f[ItemColUnits] = *i.Units
	}
	return f
}

func ItemCreatePayload(i *Item) store.Fields {
	f := ItemToPayload(i)
	f[ItemColCRFRef] = store.Ref(store.KindCRF, i.CRFID)
	return f
}
