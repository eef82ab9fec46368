package embed

// Options configures the local FastEmbed provider.
type Options struct {
	Model     string
	CacheDir  string
	MaxLength int
	BatchSize int
}
