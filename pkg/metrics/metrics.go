// Package metrics forwards player counts taken from Huginn status polls to
// external monitoring backends.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/masahide/huginn-discord/pkg/huginn"
)

// Sink receives the outcome of every status poll.
type Sink interface {
	Record(ctx context.Context, res huginn.Result, now time.Time) error
}

// Multi fans a poll out to several sinks and joins their errors.
type Multi []Sink

func (m Multi) Record(ctx context.Context, res huginn.Result, now time.Time) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, res, now); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
