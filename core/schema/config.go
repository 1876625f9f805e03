package schema

// Config selects the schema definition.
type Config struct {
	// Path is a YAML schema file. Empty selects the built-in WordPress schema.
	Path string `mapstructure:"path" default:""`
}
