package transcriber

import (
	"github.com/samber/do/v2"

	"github.com/hireloop/interview-capture/internal/config"
	"github.com/hireloop/interview-capture/internal/transcriber"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (transcriber.Transcriber, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewCloudSpeechTranscriber(CloudSpeechConfig{
			ProjectID:       c.GoogleCloudProjectID,
			CredentialsJSON: c.GoogleCloudCredentialsJSON,
			Language:        c.TranscribeLanguage,
			Location:        c.GoogleCloudSpeechLocation,
			SampleRateHertz: c.AudioSampleRateHertz,
		}), nil
	})
}
