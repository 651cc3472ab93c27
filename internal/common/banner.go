package common

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application banner and logs where output goes
func PrintBanner(config *Config, logger arbor.ILogger) {
	banner.Print(AppName, GetVersion())

	logger.Info().
		Str("version", GetFullVersion()).
		Str("environment", config.Environment).
		Str("output_root", config.Output.Root).
		Str("log_file", GetLogFilePath(logger)).
		Msg("Model finder starting")
}
