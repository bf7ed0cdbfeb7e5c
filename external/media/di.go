package media

import (
	"github.com/samber/do/v2"

	internalmedia "github.com/hireloop/interview-capture/internal/media"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (internalmedia.Processor, error) {
		if err := CheckInstallation(); err != nil {
			return nil, err
		}
		return NewFFmpegProcessor(), nil
	})
}
