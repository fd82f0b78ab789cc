package runtime

import (
	"context"
	"time"

	"github.com/rzbill/buildlog/internal/eventlog"
	"github.com/rzbill/buildlog/pkg/id"
	logpkg "github.com/rzbill/buildlog/pkg/log"
)

// SweepRetention trims every build once: entries older than the project's
// retention, then entries beyond Retention.MaxBuildBytes. It returns the
// number of entries removed.
func (r *Runtime) SweepRetention(ctx context.Context, now time.Time) (int, error) {
	projects, err := r.Projects()
	if err != nil {
		return 0, err
	}
	rc := r.config.Retention
	total := 0
	for _, p := range projects {
		if p.RetentionMs <= 0 && rc.MaxBuildBytes <= 0 {
			continue
		}
		builds, err := eventlog.ListBuilds(r.db, p.Name)
		if err != nil {
			return total, err
		}
		for _, b := range builds {
			if err := ctx.Err(); err != nil {
				return total, err
			}
			bid, err := id.Parse(b.ID)
			if err != nil {
				r.logger.Warn("skipping build with bad id", logpkg.Str("project", p.Name), logpkg.Str("build", b.ID))
				continue
			}
			l, err := r.OpenLog(p.Name, bid)
			if err != nil {
				return total, err
			}
			if p.RetentionMs > 0 {
				n, err := l.TrimOlderThan(ctx, now.Add(-p.Retention()).UnixMilli(), rc.BatchSize, 0)
				total += n
				if err != nil {
					return total, err
				}
			}
			if rc.MaxBuildBytes > 0 {
				n, err := l.TrimToMaxBytes(ctx, rc.MaxBuildBytes, rc.BatchSize, 0)
				total += n
				if err != nil {
					return total, err
				}
			}
		}
	}
	return total, nil
}

// RunRetention sweeps on the configured interval until ctx is done.
func (r *Runtime) RunRetention(ctx context.Context) {
	interval := time.Duration(r.config.Retention.SweepIntervalMs) * time.Millisecond
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := r.SweepRetention(ctx, now)
			if err != nil && ctx.Err() == nil {
				r.logger.Error("retention sweep failed", logpkg.Err(err))
				continue
			}
			if n > 0 {
				r.logger.Info("retention sweep", logpkg.Int("trimmed", n))
			}
		}
	}
}
