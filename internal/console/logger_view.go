package console

import (
	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/interfaces"
	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/models"
	"github.com/ternarybob/arbor"
)

// LoggerView implements interfaces.View on top of the structured logger.
// The server uses it: web clients follow runs through the broadcast hub instead.
type LoggerView struct {
	logger arbor.ILogger
}

func NewLoggerView(logger arbor.ILogger) *LoggerView {
	return &LoggerView{logger: logger}
}

func (v *LoggerView) ClearLog() {}

func (v *LoggerView) AppendLog(text string) {
	v.logger.Info().Msg(text)
}

func (v *LoggerView) SetStatus(text string) {
	v.logger.Debug().Str("status", text).Msg("Pipeline status")
}

func (v *LoggerView) SetProgress(scope interfaces.ProgressScope, percent int) {
	v.logger.Trace().Str("scope", string(scope)).Int("percent", percent).Msg("Pipeline progress")
}

func (v *LoggerView) Notify(notification models.Notification) {
	switch notification.Level {
	case models.NotificationError:
		v.logger.Error().Str("title", notification.Title).Msg(notification.Message)
	case models.NotificationWarning:
		v.logger.Warn().Str("title", notification.Title).Msg(notification.Message)
	default:
		v.logger.Info().Str("title", notification.Title).Msg(notification.Message)
	}
}

func (v *LoggerView) ClearBatchRows() {}

func (v *LoggerView) AddBatchRow(row models.BatchRow) {
	v.logger.Info().
		Str("file", row.File).
		Int("missing", row.Missing).
		Str("status", row.Status).
		Msg("Batch row")
}

func (v *LoggerView) EnableViewResult(enabled bool) {}
