// Package analysis adapts the external model finder helper to the collaborator
// interfaces the pipeline depends on.
package analysis

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/common"
	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/interfaces"
	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/models"
	"github.com/ternarybob/arbor"
)

// Operations understood by the helper, passed as its last argument
const (
	OpFindMissing   = "find_missing"
	OpEmitCSV       = "emit_csv"
	OpSearchLinks   = "search_links"
	OpBatchProcess  = "batch_process"
	maxResponseLine = 4 * 1024 * 1024
)

// DefaultTimeout bounds a single helper invocation when the config leaves it empty
const DefaultTimeout = 30 * time.Minute

// request is written to the helper's stdin as one JSON document
type request struct {
	Op        string                  `json:"op"`
	Path      string                  `json:"path,omitempty"`
	Refs      []models.ModelReference `json:"refs,omitempty"`
	BaseName  string                  `json:"base_name,omitempty"`
	Directory string                  `json:"directory,omitempty"`
	Pattern   string                  `json:"pattern,omitempty"`
}

// response is one JSON line on the helper's stdout. A call produces any number of
// progress and log lines followed by exactly one result or error line.
type response struct {
	Progress []int           `json:"progress,omitempty"`
	Log      string          `json:"log,omitempty"`
	Result   json.RawMessage `json:"result,omitempty"` // null is kept as a literal
	Error    string          `json:"error,omitempty"`
	Kind     string          `json:"kind,omitempty"` // "analysis" marks malformed workflows
}

// Bridge runs the helper command once per operation
type Bridge struct {
	command string
	args    []string
	workDir string
	timeout time.Duration
	logger  arbor.ILogger

	// Env is appended to the current environment of every helper process
	Env []string
}

// NewBridge creates a bridge from the [bridge] config section
func NewBridge(config common.BridgeConfig, logger arbor.ILogger) *Bridge {
	return &Bridge{
		command: config.Command,
		args:    append([]string(nil), config.Args...),
		workDir: config.WorkDir,
		timeout: common.ParseDurationOr(config.Timeout, DefaultTimeout),
		logger:  logger,
	}
}

// FindMissingModels implements interfaces.ModelAnalyzer
func (b *Bridge) FindMissingModels(ctx context.Context, path string) ([]models.ModelReference, error) {
	raw, err := b.call(ctx, request{Op: OpFindMissing, Path: path}, nil)
	if err != nil {
		return nil, err
	}

	var refs []models.ModelReference
	if !isNull(raw) {
		if err := json.Unmarshal(raw, &refs); err != nil {
			return nil, fmt.Errorf("%s: decode references: %w", OpFindMissing, err)
		}
	}
	return refs, nil
}

// EmitIntermediateArtifact implements interfaces.ModelAnalyzer
func (b *Bridge) EmitIntermediateArtifact(ctx context.Context, refs []models.ModelReference, baseName string) (string, error) {
	raw, err := b.call(ctx, request{Op: OpEmitCSV, Refs: refs, BaseName: baseName}, nil)
	if err != nil {
		return "", err
	}

	var path string
	if !isNull(raw) {
		if err := json.Unmarshal(raw, &path); err != nil {
			return "", fmt.Errorf("%s: decode path: %w", OpEmitCSV, err)
		}
	}
	return path, nil
}

// SearchLinks implements interfaces.LinkSearcher
func (b *Bridge) SearchLinks(ctx context.Context, artifactPath string, progress interfaces.ProgressFunc) (models.StageResult, error) {
	raw, err := b.call(ctx, request{Op: OpSearchLinks, Path: artifactPath}, progress)
	if err != nil {
		return models.NoResult(), err
	}
	return decodeStageResult(raw), nil
}

// BatchProcess implements interfaces.BatchProcessor
func (b *Bridge) BatchProcess(ctx context.Context, dir, pattern string, progress interfaces.ProgressFunc) (models.StageResult, error) {
	raw, err := b.call(ctx, request{Op: OpBatchProcess, Directory: dir, Pattern: pattern}, progress)
	if err != nil {
		return models.NoResult(), err
	}
	return decodeStageResult(raw), nil
}

// call runs one helper process and returns the raw result payload
func (b *Bridge) call(ctx context.Context, req request, progress interfaces.ProgressFunc) (json.RawMessage, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%s: encode request: %w", req.Op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	args := append(append([]string(nil), b.args...), req.Op)
	cmd := exec.CommandContext(ctx, b.command, args...)
	cmd.Dir = b.workDir
	cmd.Stdin = bytes.NewReader(payload)
	if len(b.Env) > 0 {
		cmd.Env = append(os.Environ(), b.Env...)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%s: stdout pipe: %w", req.Op, err)
	}

	started := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%s: start %s: %w", req.Op, b.command, err)
	}

	out := b.readResponses(req.Op, stdout, progress)
	if out.readErr != nil {
		// Nothing reads stdout any more; stop the helper before it blocks on a full pipe
		cancel()
	}
	waitErr := cmd.Wait()

	err = b.callError(ctx, req.Op, out, waitErr, strings.TrimSpace(stderr.String()))
	if err != nil {
		b.logger.Warn().
			Err(err).
			Str("op", req.Op).
			Str("stderr", strings.TrimSpace(stderr.String())).
			Dur("duration", time.Since(started)).
			Msg("Helper call failed")
		return nil, err
	}

	if stderr.Len() > 0 {
		b.logger.Debug().Str("op", req.Op).Str("stderr", strings.TrimSpace(stderr.String())).Msg("Helper stderr")
	}
	b.logger.Debug().Str("op", req.Op).Dur("duration", time.Since(started)).Msg("Helper call completed")
	return out.result, nil
}

// callError picks the most specific failure of a finished helper call, or nil.
// Unreadable output comes first, then the deadline, the helper's own error line,
// a non-zero exit and finally a missing result.
func (b *Bridge) callError(ctx context.Context, op string, out helperOutput, waitErr error, stderr string) error {
	switch {
	case out.readErr != nil:
		return fmt.Errorf("%s: read helper output: %w", op, out.readErr)
	case ctx.Err() == context.DeadlineExceeded:
		return fmt.Errorf("%s: helper timeout after %s", op, b.timeout)
	case out.failure != nil:
		return fmt.Errorf("%s: %w", op, out.failure)
	case waitErr != nil:
		if stderr == "" {
			return fmt.Errorf("%s: helper exited: %w", op, waitErr)
		}
		return fmt.Errorf("%s: helper exited: %w: %s", op, waitErr, stderr)
	case !out.done:
		return fmt.Errorf("%s: helper produced no result", op)
	}
	return nil
}

// helperOutput is what one helper call wrote to stdout
type helperOutput struct {
	result  json.RawMessage
	done    bool
	failure error // error line reported by the helper
	readErr error // stdout could not be read to the end
}

func (b *Bridge) readResponses(op string, stdout io.Reader, progress interfaces.ProgressFunc) helperOutput {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxResponseLine)

	var out helperOutput

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var resp response
		if err := json.Unmarshal(line, &resp); err != nil {
			// Stray prints from the helper are not protocol lines
			b.logger.Debug().Str("op", op).Str("line", string(line)).Msg("Ignoring non-protocol helper output")
			continue
		}

		switch {
		case out.done:
			// Keep draining so the helper never blocks on a full pipe
		case resp.Error != "":
			out.failure = errors.New(resp.Error)
			if resp.Kind == "analysis" {
				out.failure = fmt.Errorf("%w: %s", interfaces.ErrAnalysis, resp.Error)
			}
			out.done = true
		case len(resp.Result) > 0:
			out.result = append(json.RawMessage(nil), resp.Result...)
			out.done = true
		case len(resp.Progress) == 2:
			if progress != nil {
				progress(resp.Progress[0], resp.Progress[1])
			}
		case resp.Log != "":
			b.logger.Info().Str("op", op).Msg(resp.Log)
		}
	}

	out.readErr = scanner.Err()
	return out
}

// decodeStageResult maps the helper's "path | true | anything else" result
func decodeStageResult(raw json.RawMessage) models.StageResult {
	var flag bool
	if err := json.Unmarshal(raw, &flag); err == nil {
		if flag {
			return models.NothingToDo()
		}
		return models.NoResult()
	}

	var path string
	if err := json.Unmarshal(raw, &path); err == nil {
		return models.PathResult(path)
	}

	return models.NoResult()
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || string(trimmed) == "null"
}
