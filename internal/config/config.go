package config

import "fmt"

type StorageType string

const (
	StorageTypeLocal StorageType = "local"
	StorageTypeS3    StorageType = "s3"
)

type Config struct {
	Env         string
	ListenAddr  string
	MetricsAddr string

	DatabaseURL string
	RedisURL    string

	GoogleCloudProjectID       string
	GoogleCloudCredentialsJSON string
	GoogleCloudSpeechLocation  string
	TranscribeLanguage         string
	AudioSampleRateHertz       int

	StorageType StorageType
	ScratchRoot string
	VideoRoot   string
	S3Endpoint  string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3Region    string
	S3UseSSL    bool

	KafkaEnabled      bool
	KafkaBrokers      []string
	KafkaTopicPartial string
	KafkaTopicFinal   string
}

func (c *Config) Validate() error {
	for _, req := range c.requiredFieldChecks() {
		if req.value == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	if c.StorageType != StorageTypeLocal && c.StorageType != StorageTypeS3 {
		return fmt.Errorf("STORAGE_TYPE must be \"local\" or \"s3\", got %q", c.StorageType)
	}
	if c.StorageType == StorageTypeS3 && c.S3Bucket == "" {
		return fmt.Errorf("S3_BUCKET is required when STORAGE_TYPE=s3")
	}
	if c.AudioSampleRateHertz <= 0 {
		return fmt.Errorf("AUDIO_SAMPLE_RATE_HERTZ must be positive, got %d", c.AudioSampleRateHertz)
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when KAFKA_ENABLED=true")
	}
	return nil
}

type requiredEnvField struct {
	name  string
	value string
}

func (c *Config) requiredFieldChecks() []requiredEnvField {
	return []requiredEnvField{
		{name: "LISTEN_ADDR", value: c.ListenAddr},
		{name: "DATABASE_URL", value: c.DatabaseURL},
		{name: "REDIS_URL", value: c.RedisURL},
		{name: "GOOGLE_CLOUD_PROJECT_ID", value: c.GoogleCloudProjectID},
		{name: "GOOGLE_CLOUD_CREDENTIALS_JSON", value: c.GoogleCloudCredentialsJSON},
		{name: "TRANSCRIBE_LANGUAGE", value: c.TranscribeLanguage},
		{name: "SCRATCH_ROOT", value: c.ScratchRoot},
		{name: "VIDEO_ROOT", value: c.VideoRoot},
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
