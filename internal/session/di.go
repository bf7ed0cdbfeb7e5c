package session

import (
	"github.com/samber/do/v2"

	"github.com/hireloop/interview-capture/internal/events"
	"github.com/hireloop/interview-capture/internal/interview"
	"github.com/hireloop/interview-capture/internal/media"
	"github.com/hireloop/interview-capture/internal/observability"
	"github.com/hireloop/interview-capture/internal/registry"
	"github.com/hireloop/interview-capture/internal/transcriber"
	"github.com/hireloop/interview-capture/internal/video"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Coordinator, error) {
		interviews := do.MustInvoke[interview.Store](i)
		reg := do.MustInvoke[registry.Registry](i)
		stt := do.MustInvoke[transcriber.Transcriber](i)
		proc := do.MustInvoke[media.Processor](i)
		videoStore := do.MustInvoke[*video.Store](i)
		jobs := do.MustInvoke[*video.JobRunner](i)
		publisher := do.MustInvoke[events.Publisher](i)
		metrics := do.MustInvoke[*observability.Metrics](i)
		return NewCoordinator(interviews, reg, stt, proc, videoStore, jobs, publisher, metrics), nil
	})
}
