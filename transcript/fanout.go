package transcript

import (
	"context"
	"errors"

	"github.com/fabfab/docchat/session"
)

// Fanout hands every exchange to all of its recorders and joins their
// errors. A failing recorder does not stop the others.
type Fanout []session.Recorder

var _ session.Recorder = Fanout(nil)

func (f Fanout) Record(ctx context.Context, exchange session.Exchange) error {
	var errs []error
	for _, r := range f {
		if r == nil {
			continue
		}
		if err := r.Record(ctx, exchange); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
