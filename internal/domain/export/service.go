package export

import (
	"bytes"
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/edc/edc/internal/domain"
	"github.com/edc/edc/internal/domain/crf"
	"github.com/edc/edc/internal/domain/subject"
	"github.com/edc/edc/internal/domain/trial"
	"github.com/edc/edc/internal/domain/visit"
	"github.com/edc/edc/internal/platform/blobstore"
	"github.com/edc/edc/internal/platform/store"
)

type Service struct {
	src    Sources
	blobs  blobstore.BlobStore
	logger zerolog.Logger
}

func NewService(src Sources, blobs blobstore.BlobStore, logger zerolog.Logger) *Service {
	return &Service{src: src, blobs: blobs, logger: logger.With().Str("component", "export").Logger()}
}

// Export collects the trial's bundle, encodes it and uploads it. The
// returned metadata carries the key to download it by.
func (s *Service) Export(ctx context.Context, trialID uuid.UUID, format Format, createdBy string) (*blobstore.Metadata, error) {
	if trialID == uuid.Nil {
		return nil, domain.Invalid("trial_id", "is required")
	}
	b, err := Collect(ctx, s.src, trialID)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := b.Encode(&buf, format); err != nil {
		return nil, err
	}

	meta, err := s.blobs.Upload(ctx, blobstore.Metadata{
		FileName:    fmt.Sprintf("trial-%s-%s.%s", trialID, b.ExportedAt.Format("20060102T150405Z"), format),
		ContentType: format.ContentType(),
		TrialID:     trialID.String(),
		Format:      string(format),
		CreatedBy:   createdBy,
		Tags:        map[string]string{"entities": fmt.Sprint(b.Count())},
	}, &buf)
	if err != nil {
		return nil, fmt.Errorf("store export: %w", err)
	}

	s.logger.Info().
		Str("trial_id", trialID.String()).
		Str("key", meta.Key).
		Str("format", string(format)).
		Int("entities", b.Count()).
		Int64("bytes", meta.Size).
		Msg("trial exported")
	return meta, nil
}

// StoreSources reads every level of the bundle from one store client.
func StoreSources(client store.Client) Sources {
	return Sources{
		Trials:   trial.NewStoreRepo(client),
		Subjects: subject.NewStoreRepo(client),
		Visits:   visit.NewStoreRepo(client),
		CRFs:     crf.NewStoreRepo(client),
		Items:    crf.NewItemStoreRepo(client),
	}
}
