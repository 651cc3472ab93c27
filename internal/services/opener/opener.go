// Package opener hands files and folders to the desktop's default application.
package opener

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/ternarybob/arbor"
)

// Service implements interfaces.Opener with the platform launcher
type Service struct {
	logger arbor.ILogger
	goos   string
	start  func(name string, args ...string) error
}

// NewService creates an opener for the current platform
func NewService(logger arbor.ILogger) *Service {
	return &Service{
		logger: logger,
		goos:   runtime.GOOS,
		start:  startDetached,
	}
}

// Open launches target with its default handler. It does not wait for the handler to exit.
func (s *Service) Open(target string) error {
	if target == "" {
		return fmt.Errorf("nothing to open")
	}
	if _, err := os.Stat(target); err != nil && !isURL(target) {
		return fmt.Errorf("cannot open %s: %w", target, err)
	}

	name, args := launcher(s.goos, target)
	if err := s.start(name, args...); err != nil {
		return fmt.Errorf("failed to open %s: %w", target, err)
	}

	s.logger.Debug().Str("target", target).Str("launcher", name).Msg("Opened with default handler")
	return nil
}

func launcher(goos, target string) (string, []string) {
	switch goos {
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", target}
	case "darwin":
		return "open", []string{target}
	default:
		return "xdg-open", []string{target}
	}
}

func isURL(target string) bool {
	return strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://")
}

func startDetached(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
