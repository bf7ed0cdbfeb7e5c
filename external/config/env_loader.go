package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	internalconfig "github.com/hireloop/interview-capture/internal/config"
)

type envConfig struct {
	Env         string `env:"ENV" envDefault:"production"`
	ListenAddr  string `env:"LISTEN_ADDR" envDefault:":8080"`
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9090"`

	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`

	GoogleCloudProjectID       string `env:"GOOGLE_CLOUD_PROJECT_ID,required"`
	GoogleCloudCredentialsJSON string `env:"GOOGLE_CLOUD_CREDENTIALS_JSON,required"`
	GoogleCloudSpeechLocation  string `env:"GOOGLE_CLOUD_SPEECH_LOCATION" envDefault:"global"`
	TranscribeLanguage         string `env:"TRANSCRIBE_LANGUAGE" envDefault:"en-US"`
	AudioSampleRateHertz       int    `env:"AUDIO_SAMPLE_RATE_HERTZ" envDefault:"48000"`

	StorageType string `env:"STORAGE_TYPE" envDefault:"local"`
	ScratchRoot string `env:"SCRATCH_ROOT" envDefault:"storage/temp"`
	VideoRoot   string `env:"VIDEO_ROOT" envDefault:"storage/videos"`
	S3Endpoint  string `env:"S3_ENDPOINT" envDefault:"s3.amazonaws.com"`
	S3Bucket    string `env:"S3_BUCKET"`
	S3AccessKey string `env:"S3_ACCESS_KEY"`
	S3SecretKey string `env:"S3_SECRET_KEY"`
	S3Region    string `env:"S3_REGION" envDefault:"us-east-1"`
	S3UseSSL    bool   `env:"S3_USE_SSL" envDefault:"true"`

	KafkaEnabled      bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers      []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopicPartial string   `env:"KAFKA_TOPIC_PARTIAL" envDefault:"interview.transcript.partial"`
	KafkaTopicFinal   string   `env:"KAFKA_TOPIC_FINAL" envDefault:"interview.transcript.final"`
}

func Load() (*internalconfig.Config, error) {
	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}

	cfg := &internalconfig.Config{
		Env:                        raw.Env,
		ListenAddr:                 raw.ListenAddr,
		MetricsAddr:                raw.MetricsAddr,
		DatabaseURL:                raw.DatabaseURL,
		RedisURL:                   raw.RedisURL,
		GoogleCloudProjectID:       raw.GoogleCloudProjectID,
		GoogleCloudCredentialsJSON: raw.GoogleCloudCredentialsJSON,
		GoogleCloudSpeechLocation:  raw.GoogleCloudSpeechLocation,
		TranscribeLanguage:         raw.TranscribeLanguage,
		AudioSampleRateHertz:       raw.AudioSampleRateHertz,
		StorageType:                internalconfig.StorageType(raw.StorageType),
		ScratchRoot:                raw.ScratchRoot,
		VideoRoot:                  raw.VideoRoot,
		S3Endpoint:                 raw.S3Endpoint,
		S3Bucket:                   raw.S3Bucket,
		S3AccessKey:                raw.S3AccessKey,
		S3SecretKey:                raw.S3SecretKey,
		S3Region:                   raw.S3Region,
		S3UseSSL:                   raw.S3UseSSL,
		KafkaEnabled:               raw.KafkaEnabled,
		KafkaBrokers:               raw.KafkaBrokers,
		KafkaTopicPartial:          raw.KafkaTopicPartial,
		KafkaTopicFinal:            raw.KafkaTopicFinal,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
