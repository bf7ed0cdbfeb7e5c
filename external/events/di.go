package events

import (
	"github.com/samber/do/v2"

	"github.com/hireloop/interview-capture/internal/config"
	"github.com/hireloop/interview-capture/internal/events"
	"github.com/hireloop/interview-capture/internal/observability"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (events.Publisher, error) {
		cfg := do.MustInvoke[*config.Config](i)
		metrics := do.MustInvoke[*observability.Metrics](i)
		return NewKafkaPublisher(KafkaConfig{
			Enabled:      cfg.KafkaEnabled,
			Brokers:      cfg.KafkaBrokers,
			TopicPartial: cfg.KafkaTopicPartial,
			TopicFinal:   cfg.KafkaTopicFinal,
		}, metrics), nil
	})
}
