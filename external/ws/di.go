package ws

import (
	"github.com/samber/do/v2"

	"github.com/hireloop/interview-capture/internal/config"
	"github.com/hireloop/interview-capture/internal/session"
	"github.com/hireloop/interview-capture/internal/storage"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Server, error) {
		cfg := do.MustInvoke[*config.Config](i)
		coordinator := do.MustInvoke[*session.Coordinator](i)
		backend := do.MustInvoke[storage.Backend](i)

		// Only local backends need the server to expose merged artifacts;
		// object stores serve their own URLs.
		videoRoot := ""
		if backend.IsLocal() {
			videoRoot = cfg.VideoRoot
		}
		return NewServer(ServerConfig{
			ListenAddr: cfg.ListenAddr,
			VideoRoot:  videoRoot,
		}, coordinator), nil
	})
}
