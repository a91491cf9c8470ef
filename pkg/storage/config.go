package storage

// Config holds the S3 connection settings for tenant buckets.
type Config struct {
	Region      string `env:"S3_REGION" envDefault:"us-east-1"`
	AccessKeyID string `env:"S3_ACCESS_KEY_ID"`
	SecretKey   string `env:"S3_SECRET_KEY"`

	// Endpoint and ForcePathStyle target S3-compatible services like MinIO.
	Endpoint       string `env:"S3_ENDPOINT"`
	ForcePathStyle bool   `env:"S3_FORCE_PATH_STYLE" envDefault:"false"`

	// KMSKeyID selects SSE-KMS for bucket encryption. Empty means SSE-S3.
	KMSKeyID string `env:"S3_KMS_KEY_ID"`
}
