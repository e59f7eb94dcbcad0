// Package corpus tracks what the retrieval backend currently indexes: when
// the corpus last changed and which files it holds.
package corpus

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fabfab/docchat/gateway"
)

// Source is the part of the retrieval backend the poller reads from.
type Source interface {
	LastChange(ctx context.Context) (time.Time, error)
	InputFiles(ctx context.Context) ([]gateway.InputFile, error)
}

var _ Source = (*gateway.Client)(nil)

type Poller struct {
	source   Source
	logger   *zap.Logger
	now      func() time.Time
	snapshot atomic.Pointer[Snapshot]
}

func NewPoller(source Source, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Poller{
		source: source,
		logger: logger,
		now:    time.Now,
	}
	p.snapshot.Store(&Snapshot{Files: []File{}})
	return p
}

// Snapshot returns the most recently completed snapshot.
func (p *Poller) Snapshot() Snapshot {
	return *p.snapshot.Load()
}

// Refresh queries the last change time and the file listing concurrently and
// publishes the merged result. A failed query leaves its field empty; Refresh
// itself never fails.
func (p *Poller) Refresh(ctx context.Context) Snapshot {
	var (
		lastChange *time.Time
		inputs     []gateway.InputFile
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		changed, err := p.source.LastChange(gctx)
		if err != nil {
			p.logger.Warn("fetch last change time", zap.Error(err))
			return nil
		}
		lastChange = &changed
		return nil
	})
	g.Go(func() error {
		files, err := p.source.InputFiles(gctx)
		if err != nil {
			p.logger.Warn("fetch input files", zap.Error(err))
			return nil
		}
		inputs = files
		return nil
	})
	_ = g.Wait()

	snap := &Snapshot{
		LastChangeAt: lastChange,
		Files:        sortedFiles(inputs),
		RefreshedAt:  p.now().UTC(),
	}
	p.snapshot.Store(snap)
	p.logger.Debug("corpus snapshot refreshed",
		zap.Bool("last_change_known", lastChange != nil),
		zap.Int("files", len(snap.Files)))
	return *snap
}

// Run refreshes immediately and then every interval until ctx is done.
func (p *Poller) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	p.Refresh(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.Refresh(ctx)
		}
	}
}

// sortedFiles orders files by seen time, newest first, then by path or name
// descending. Entries with neither path nor name are skipped.
func sortedFiles(inputs []gateway.InputFile) []File {
	kept := make([]gateway.InputFile, 0, len(inputs))
	for _, in := range inputs {
		if in.Key() == "" {
			continue
		}
		kept = append(kept, in)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if !kept[i].SeenAt.Equal(kept[j].SeenAt) {
			return kept[i].SeenAt.After(kept[j].SeenAt)
		}
		return kept[i].Key() > kept[j].Key()
	})

	files := make([]File, len(kept))
	for i, in := range kept {
		files[i] = File{
			DisplayName: in.DisplayName(),
			Status:      in.Status,
			SeenAt:      in.SeenAt,
		}
	}
	return files
}
