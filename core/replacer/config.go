package replacer

// Config holds settings of the value replacers.
type Config struct {
	// URL is the live site URL stored as SiteURLPlaceholder.
	URL string `mapstructure:"url" default:""`
}
