// Package console renders pipeline state for the command line front end.
package console

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/gookit/color"
	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/interfaces"
	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/models"
)

const progressWidth = 30

// TerminalView implements interfaces.View by printing to a writer.
// It also keeps the rendered state so callers can inspect it after a run.
type TerminalView struct {
	mu      sync.Mutex
	out     io.Writer
	colored bool

	log           []string
	status        string
	progress      map[interfaces.ProgressScope]int
	notifications []models.Notification
	rows          []models.BatchRow
	viewResult    bool
}

// NewTerminalView creates a view writing to out. colored enables ANSI level labels.
func NewTerminalView(out io.Writer, colored bool) *TerminalView {
	return &TerminalView{
		out:      out,
		colored:  colored,
		progress: make(map[interfaces.ProgressScope]int),
	}
}

// Welcome prints the greeting shown before the first run
func (v *TerminalView) Welcome(appName, version string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.printf("%s %s\n", appName, version)
	v.printf("Finds the models a ComfyUI workflow references but that are missing locally,\n")
	v.printf("then searches download links and writes a report under the results folder.\n\n")
}

func (v *TerminalView) ClearLog() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.log = nil
}

func (v *TerminalView) AppendLog(text string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.log = append(v.log, text)
	v.printf("%s\n", text)
}

func (v *TerminalView) SetStatus(text string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if text == v.status {
		return
	}
	v.status = text
	v.printf("%s %s\n", v.paint(color.Cyan, "[status]"), text)
}

func (v *TerminalView) SetProgress(scope interfaces.ProgressScope, percent int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if previous, ok := v.progress[scope]; ok && previous == percent {
		return
	}
	v.progress[scope] = percent
	v.printf("%s %s\n", scope, progressBar(percent))
}

func (v *TerminalView) Notify(notification models.Notification) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.notifications = append(v.notifications, notification)

	label := "[" + string(notification.Level) + "]"
	switch notification.Level {
	case models.NotificationError:
		label = v.paint(color.Red, label)
	case models.NotificationWarning:
		label = v.paint(color.Yellow, label)
	default:
		label = v.paint(color.Green, label)
	}
	v.printf("%s %s: %s\n", label, notification.Title, notification.Message)
}

func (v *TerminalView) ClearBatchRows() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rows = nil
}

func (v *TerminalView) AddBatchRow(row models.BatchRow) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rows = append(v.rows, row)
	v.printf("  %-48s %6d  %s\n", row.File, row.Missing, row.Status)
}

func (v *TerminalView) EnableViewResult(enabled bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.viewResult = enabled
}

// Status returns the current status line
func (v *TerminalView) Status() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.status
}

// Log returns a copy of the log lines since the last ClearLog
func (v *TerminalView) Log() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.log...)
}

// Progress returns the last percentage shown for scope
func (v *TerminalView) Progress(scope interfaces.ProgressScope) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.progress[scope]
}

func (v *TerminalView) Notifications() []models.Notification {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]models.Notification(nil), v.notifications...)
}

func (v *TerminalView) Rows() []models.BatchRow {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]models.BatchRow(nil), v.rows...)
}

func (v *TerminalView) ViewResultEnabled() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.viewResult
}

func (v *TerminalView) paint(c color.Color, text string) string {
	if !v.colored {
		return text
	}
	return c.Sprint(text)
}

func (v *TerminalView) printf(format string, args ...interface{}) {
	if v.out == nil {
		return
	}
	fmt.Fprintf(v.out, format, args...)
}

func progressBar(percent int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := percent * progressWidth / 100
	return fmt.Sprintf("[%s%s] %3d%%", strings.Repeat("#", filled), strings.Repeat("-", progressWidth-filled), percent)
}
