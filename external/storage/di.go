package storage

import (
	"github.com/samber/do/v2"

	"github.com/hireloop/interview-capture/internal/config"
	internalstorage "github.com/hireloop/interview-capture/internal/storage"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (internalstorage.Backend, error) {
		cfg := do.MustInvoke[*config.Config](i)
		if cfg.StorageType == config.StorageTypeS3 {
			return NewS3Backend(S3Config{
				Endpoint:  cfg.S3Endpoint,
				Bucket:    cfg.S3Bucket,
				AccessKey: cfg.S3AccessKey,
				SecretKey: cfg.S3SecretKey,
				Region:    cfg.S3Region,
				UseSSL:    cfg.S3UseSSL,
			})
		}
		return NewLocalBackend(cfg.VideoRoot)
	})
}
