// internal/daemon/config/file.go
package config

// FileConfig represents the raw bugzood.toml file contents.
// All fields are pointers to distinguish "not set" from "set to zero/false".
type FileConfig struct {
	Server   FileServerConfig  `toml:"server"`
	Engine   FileEngineConfig  `toml:"engine"`
	Timeouts FileTimeoutConfig `toml:"timeouts"`
}

// FileServerConfig is the TOML representation of ServerConfig.
type FileServerConfig struct {
	Listen     *string `toml:"listen"`
	DataDir    *string `toml:"data_dir"`
	LogLevel   *string `toml:"log_level"`
	Workers    *int    `toml:"workers"`
	Foreground *bool   `toml:"foreground"`
}

// FileEngineConfig is the TOML representation of EngineConfig.
type FileEngineConfig struct {
	ScenariosDir     *string `toml:"scenarios_dir"`
	ArchivesDir      *string `toml:"archives_dir"`
	RetainFailed     *bool   `toml:"retain_failed"`
	OutputLimitBytes *int    `toml:"output_limit_bytes"`
}

// FileTimeoutConfig is the TOML representation of TimeoutConfig.
// Uses strings for duration values since TOML cannot decode directly to time.Duration.
type FileTimeoutConfig struct {
	Shutdown   *string `toml:"shutdown"`
	Validation *string `toml:"validation"`
	Download   *string `toml:"download"`
}

// IsEmpty returns true if no configuration values are set.
func (f *FileConfig) IsEmpty() bool {
	return f.Server.Listen == nil &&
		f.Server.DataDir == nil &&
		f.Server.LogLevel == nil &&
		f.Server.Workers == nil &&
		f.Server.Foreground == nil &&
		f.Engine.ScenariosDir == nil &&
		f.Engine.ArchivesDir == nil &&
		f.Engine.RetainFailed == nil &&
		f.Engine.OutputLimitBytes == nil &&
		f.Timeouts.Shutdown == nil &&
		f.Timeouts.Validation == nil &&
		f.Timeouts.Download == nil
}
