package video

import (
	"github.com/samber/do/v2"

	"github.com/hireloop/interview-capture/internal/config"
	"github.com/hireloop/interview-capture/internal/interview"
	"github.com/hireloop/interview-capture/internal/media"
	"github.com/hireloop/interview-capture/internal/observability"
	"github.com/hireloop/interview-capture/internal/storage"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Store, error) {
		cfg := do.MustInvoke[*config.Config](i)
		metrics := do.MustInvoke[*observability.Metrics](i)
		return NewStore(cfg.ScratchRoot, metrics), nil
	})
	do.Provide(injector, func(i do.Injector) (*Merger, error) {
		store := do.MustInvoke[*Store](i)
		proc := do.MustInvoke[media.Processor](i)
		backend := do.MustInvoke[storage.Backend](i)
		metrics := do.MustInvoke[*observability.Metrics](i)
		return NewMerger(store, proc, backend, metrics), nil
	})
	do.Provide(injector, func(i do.Injector) (*JobRunner, error) {
		merger := do.MustInvoke[*Merger](i)
		store := do.MustInvoke[interview.Store](i)
		metrics := do.MustInvoke[*observability.Metrics](i)
		return NewJobRunner(merger, store, metrics), nil
	})
}
