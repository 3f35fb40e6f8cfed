package subject

import (
	"github.com/edc/edc/internal/domain"
	"github.com/edc/edc/internal/platform/store"
)

const (
	ColID             = "subjectId"
	ColCode           = "subjectCode"
	ColScreeningDate  = "screeningDate"
	ColEnrollmentDate = "enrollmentDate"
	ColStatus         = "status"
	ColTrialRef       = "trialRef"
)

var Columns = []string{ColCode, ColScreeningDate, ColEnrollmentDate, ColStatus, ColTrialRef}

var codec = domain.Codec[*Subject]{Kind: store.KindSubject, Columns: Columns, ToModel: ToModel}

func ToModel(r store.Record) *Subject {
	return &Subject{
		ID:             r.ID(ColID),
		Code:           r.String(ColCode),
		ScreeningDate:  r.TimePtr(ColScreeningDate),
		EnrollmentDate: r.TimePtr(ColEnrollmentDate),
		Status:         Status(r.Option(ColStatus)),
		TrialID:        r.Ref(ColTrialRef),
	}
}

// ToPayload writes every editable column, the trial reference included.
func ToPayload(s *Subject) store.Fields {
	f := store.Fields{
		ColCode:           s.Code,
		ColScreeningDate:  nil,
		ColEnrollmentDate: nil,
		ColStatus:         store.Option(int(s.Status)),
		ColTrialRef:       store.Ref(store.KindTrial, s.TrialID),
	}
	if s.ScreeningDate != nil {
		f[ColScreeningDate] = s.ScreeningDate.UTC()
	}
	if s.EnrollmentDate != nil {
		f[ColEnrollmentDate] = s.EnrollmentDate.UTC()
	}
	return f
}
