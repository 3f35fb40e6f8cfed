package visit

import (
	"github.com/google/uuid"

	"github.com/edc/edc/internal/domain"
	"github.com/edc/edc/internal/platform/store"
)

const (
	ColID         = "visitId"
	ColNumber     = "visitNumber"
	ColDate       = "visitDate"
	ColStatus     = "status"
	ColSubjectRef = "subjectRef"
)

var Columns = []string{ColNumber, ColDate, ColStatus, ColSubjectRef}

var codec = domain.Codec[*Visit]{Kind: store.KindVisit, Columns: Columns, ToModel: ToModel}

func ToModel(r store.Record) *Visit {
	return &Visit{
		ID:        r.ID(ColID),
		Number:    r.StringPtr(ColNumber),
		Date:      r.Time(ColDate),
		Status:    Status(r.Option(ColStatus)),
		SubjectID: r.Ref(ColSubjectRef),
	}
}

func ToPayload(v *Visit) store.Fields {
	f := store.Fields{
		ColNumber:     nil,
		ColDate:       v.Date.UTC(),
		ColStatus:     store.Option(int(v.Status)),
		ColSubjectRef: store.Ref(store.KindSubject, v.SubjectID),
	}
	if v.Number != nil {
		f[ColNumber] = *v.Number
	}
	return f
}

// CreatePayload is ToPayload plus the client-generated id, when there is one.
func CreatePayload(v *Visit) store.Fields {
	f := ToPayload(v)
	if v.ID != uuid.Nil {
		f[ColID] = v.ID
	}
	return f
}
