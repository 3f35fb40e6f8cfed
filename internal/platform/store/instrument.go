package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Observer receives one callback per completed store call.
type Observer interface {
	ObserveStoreCall(kind Kind, op string, outcome ErrorKind, elapsed time.Duration)
}

type instrumented struct {
	next     Client
	logger   zerolog.Logger
	timeout  time.Duration
	observer Observer
}

// Instrument decorates c with a per-call deadline, structured logging and an
// optional observer. A zero timeout leaves the caller's context untouched.
// Instrumenting a nil client yields nil so that ErrNotConnected still
// surfaces from the repositories.
func Instrument(c Client, logger zerolog.Logger, timeout time.Duration, observer Observer) Client {
	if c == nil {
		return nil
	}
	return &instrumented{next: c, logger: logger, timeout: timeout, observer: observer}
}

func (i *instrumented) begin(ctx context.Context) (context.Context, context.CancelFunc, time.Time) {
	if i.timeout > 0 {
		ctx, cancel := context.WithTimeout(ctx, i.timeout)
		return ctx, cancel, time.Now()
	}
	return ctx, func() {}, time.Now()
}

func (i *instrumented) finish(kind Kind, op string, id uuid.UUID, start time.Time, err error) {
	elapsed := time.Since(start)
	outcome := Classify(err)
	if i.observer != nil {
		i.observer.ObserveStoreCall(kind, op, outcome, elapsed)
	}
	var ev *zerolog.Event
	switch outcome {
	case ErrorKindNone:
		ev = i.logger.Debug()
	case ErrorKindNotFound:
		ev = i.logger.Info()
	default:
		ev = i.logger.Error().Err(err)
	}
	ev = ev.Str("kind", string(kind)).Str("op", op).Dur("duration", elapsed)
	if id != uuid.Nil {
		ev = ev.Str("id", id.String())
	}
	if err != nil {
		ev = ev.Str("outcome", string(outcome))
	}
	ev.Msg("store call")
}

func (i *instrumented) Query(ctx context.Context, kind Kind, columns []string, filters ...Filter) ([]Record, error) {
	ctx, cancel, start := i.begin(ctx)
	defer cancel()
	recs, err := i.next.Query(ctx, kind, columns, filters...)
	i.finish(kind, "query", uuid.Nil, start, err)
	return recs, err
}

func (i *instrumented) Get(ctx context.Context, kind Kind, id uuid.UUID, columns []string) (Record, error) {
	ctx, cancel, start := i.begin(ctx)
	defer cancel()
	rec, err := i.next.Get(ctx, kind, id, columns)
	i.finish(kind, "get", id, start, err)
	return rec, err
}

func (i *instrumented) Create(ctx context.Context, kind Kind, fields Fields) (uuid.UUID, error) {
	ctx, cancel, start := i.begin(ctx)
	defer cancel()
	id, err := i.next.Create(ctx, kind, fields)
	i.finish(kind, "create", id, start, err)
	return id, err
}

func (i *instrumented) Update(ctx context.Context, kind Kind, id uuid.UUID, fields Fields) error {
	ctx, cancel, start := i.begin(ctx)
	defer cancel()
	err := i.next.Update(ctx, kind, id, fields)
	i.finish(kind, "update", id, start, err)
	return err
}

func (i *instrumented) Delete(ctx context.Context, kind Kind, id uuid.UUID) error {
	ctx, cancel, start := i.begin(ctx)
	defer cancel()
	err := i.next.Delete(ctx, kind, id)
	i.finish(kind, "delete", id, start, err)
	return err
}
