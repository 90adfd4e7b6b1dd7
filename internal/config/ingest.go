package config

// IngestConfig holds document ingestion limits and chunking parameters.
type IngestConfig struct {
	// ChunkSize is the chunk window in characters (default: 500)
	ChunkSize int `mapstructure:"chunk_size" json:"chunk_size"`
	// ChunkOverlap is the overlap between consecutive chunks in characters (default: 50)
	ChunkOverlap int `mapstructure:"chunk_overlap" json:"chunk_overlap"`
	// MaxFileSize is the maximum accepted upload size in bytes (default: 10 MiB)
	MaxFileSize int64 `mapstructure:"max_file_size" json:"max_file_size"`
	// MaxChunks caps chunks per document; longer documents are truncated (default: 100)
	MaxChunks int `mapstructure:"max_chunks" json:"max_chunks"`
	// StorageDir is where raw uploads are kept (default: ~/.recall/storage)
	StorageDir string `mapstructure:"storage_dir" json:"storage_dir"`
}

// WebFetchConfig holds the collector configuration for URL ingestion.
type WebFetchConfig struct {
	// Parallelism is max concurrent requests per domain (default: 2)
	Parallelism int `mapstructure:"parallelism" json:"parallelism"`
	// DelayMs is delay between requests in milliseconds (default: 1000)
	DelayMs int `mapstructure:"delay_ms" json:"delay_ms"`
	// TimeoutMs is request timeout in milliseconds (default: 30000)
	TimeoutMs int `mapstructure:"timeout_ms" json:"timeout_ms"`
	// AllowPrivateHosts disables the SSRF guard so URL ingestion can
	// reach loopback and private addresses. Local development only.
	AllowPrivateHosts bool `mapstructure:"allow_private_hosts" json:"allow_private_hosts"`
}
