package config

// LoggingConfig holds logging configuration for the slog-backed
// RequestLogger built by internal/adapters/cli (buildLogger in route.go).
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
	Output string `mapstructure:"output" validate:"required,oneof=stdout stderr"`
}
