package opensearch

// Config holds the OpenSearch connection and access-log index settings.
type Config struct {
	Addresses    []string `env:"OPENSEARCH_ADDRESSES" envDefault:"http://localhost:9200" envSeparator:","`
	Username     string   `env:"OPENSEARCH_USERNAME"`
	Password     string   `env:"OPENSEARCH_PASSWORD"`
	MaxRetries   int      `env:"OPENSEARCH_MAX_RETRIES" envDefault:"3"`
	DisableRetry bool     `env:"OPENSEARCH_DISABLE_RETRY" envDefault:"false"`

	// AccessIndex is the prefix of the daily access-log indices,
	// "<AccessIndex>-2006.01.02".
	AccessIndex string `env:"OPENSEARCH_ACCESS_INDEX" envDefault:"tenant-access"`
}
