package pipelines

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/logging"
)

const (
	maxStderrBytes = 8 * 1024 // 8 KB tail of stderr kept for diagnostics
)

// Runner executes ffmpeg commands as subprocesses.
type Runner interface {
	// RunDoctor executes `ffmpeg -version` and reports what it found.
	RunDoctor(ctx context.Context) (*Capabilities, error)

	// ExtractAudio writes a mono 16 kHz 16-bit WAV of the requested window.
	ExtractAudio(ctx context.Context, req ExtractRequest) (RunResult, error)

	// ArtifactsDir returns the base directory for extracted audio.
	ArtifactsDir() string
}

// Config holds the runner's configuration.
type Config struct {
	FFmpegPath     string // path or name of the ffmpeg binary
	ArtifactsBase  string // e.g. ~/.cre8rflow/artifacts
	DoctorTimeout  time.Duration
	ExtractTimeout time.Duration
	Logger         *slog.Logger
	DebugPaths     bool // if true, log full file paths; otherwise sanitise
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig(dataDir string, logger *slog.Logger) Config {
	return Config{
		FFmpegPath:     "ffmpeg",
		ArtifactsBase:  filepath.Join(dataDir, "artifacts"),
		DoctorTimeout:  10 * time.Second,
		ExtractTimeout: 2 * time.Minute,
		Logger:         logger,
	}
}

// SubprocessRunner is the production implementation of Runner.
type SubprocessRunner struct {
	cfg    Config
	ffmpeg string // resolved binary path
}

// NewRunner creates a SubprocessRunner. A missing ffmpeg is not an error
// here: the doctor reports it and extraction fails per call, so the agent
// can still run trim and cut-out sessions.
func NewRunner(cfg Config) (*SubprocessRunner, error) {
	cfg.Logger = logging.OrDiscard(cfg.Logger)
	if err := os.MkdirAll(cfg.ArtifactsBase, 0755); err != nil {
		return nil, fmt.Errorf("cannot create artifacts dir: %w", err)
	}

	bin, err := resolveFFmpeg(cfg.FFmpegPath)
	if err != nil {
		cfg.Logger.Warn("ffmpeg not found; audio subtasks will fail", "error", err)
		bin = cfg.FFmpegPath
	}

	cfg.Logger.Info("ffmpeg runner initialised",
		"ffmpeg", bin,
		"artifacts_dir", logging.SanitizePath(cfg.ArtifactsBase),
	)
	return &SubprocessRunner{cfg: cfg, ffmpeg: bin}, nil
}

func (r *SubprocessRunner) ArtifactsDir() string {
	return r.cfg.ArtifactsBase
}

// NewArtifactPath returns a fresh .wav path under the artifacts dir.
func NewArtifactPath(r Runner, prefix string) string {
	return filepath.Join(r.ArtifactsDir(), prefix+"-"+uuid.NewString()+".wav")
}

// RunDoctor checks the ffmpeg binary.
func (r *SubprocessRunner) RunDoctor(ctx context.Context) (*Capabilities, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.DoctorTimeout)
	defer cancel()

	caps := &Capabilities{FFmpegPath: r.ffmpeg, CheckedAt: time.Now()}

	var stdout bytes.Buffer
	result := r.exec(ctx, "", &stdout, "-hide_banner", "-version")
	if !result.IsSuccess() {
		caps.Error = truncate(strings.TrimSpace(result.StderrTail), 240)
		r.cfg.Logger.Warn("doctor check failed", "exit_code", result.ExitCode)
		return caps, fmt.Errorf("ffmpeg -version exited %d: %s", result.ExitCode, caps.Error)
	}

	caps.HasFFmpeg = true
	caps.Version = parseVersion(stdout.String())
	r.cfg.Logger.Info("doctor check complete", "ffmpeg_version", caps.Version)
	return caps, nil
}

// ExtractAudio runs ffmpeg to cut the requested window into a WAV file.
func (r *SubprocessRunner) ExtractAudio(ctx context.Context, req ExtractRequest) (RunResult, error) {
	if req.MediaPath == "" {
		return RunResult{ExitCode: -1}, errors.New("extract: media path is empty")
	}
	if req.OutPath == "" {
		req.OutPath = NewArtifactPath(r, "audio")
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.ExtractTimeout)
	defer cancel()

	result := r.exec(ctx, req.OutPath, io.Discard, extractArgs(req)...)
	if !result.IsSuccess() {
		return result, fmt.Errorf("ffmpeg exited %d: %s", result.ExitCode, truncate(strings.TrimSpace(result.StderrTail), 240))
	}
	return result, nil
}

func extractArgs(req ExtractRequest) []string {
	args := []string{"-hide_banner", "-nostdin", "-y"}
	if req.From > 0 {
		args = append(args, "-ss", formatSeconds(req.From))
	}
	args = append(args, "-i", req.MediaPath)
	if w := req.Window(); w > 0 {
		args = append(args, "-t", formatSeconds(w))
	}
	return append(args,
		"-vn",
		"-ac", strconv.Itoa(Channels),
		"-ar", strconv.Itoa(SampleRate),
		"-acodec", "pcm_s16le",
		"-f", "wav",
		req.OutPath,
	)
}

// exec is the core subprocess execution helper.
func (r *SubprocessRunner) exec(ctx context.Context, outPath string, stdout io.Writer, args ...string) RunResult {
	start := time.Now()

	if outPath != "" {
		if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
			r.cfg.Logger.Error("cannot create output dir", "error", err)
			return RunResult{ExitCode: -1, StderrTail: err.Error(), Duration: time.Since(start)}
		}
	}

	cmd := exec.CommandContext(ctx, r.ffmpeg, args...)

	var stderrBuf bytes.Buffer
	cmd.Stderr = &limitedWriter{w: &stderrBuf, limit: maxStderrBytes}
	cmd.Stdout = stdout

	r.cfg.Logger.Debug("executing ffmpeg", "args", r.safeArgs(args))

	err := cmd.Run()
	elapsed := time.Since(start)

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
			stderrBuf.WriteString(err.Error())
		}
	}

	stderrTail := stderrBuf.String()

	if exitCode != 0 {
		r.cfg.Logger.Warn("ffmpeg command failed",
			"exit_code", exitCode,
			"duration_ms", elapsed.Milliseconds(),
			"stderr_tail", truncate(stderrTail, 512),
		)
	} else if outPath != "" {
		r.cfg.Logger.Info("ffmpeg command succeeded",
			"duration_ms", elapsed.Milliseconds(),
			"output", r.safePath(outPath),
		)
	}

	return RunResult{
		ExitCode:   exitCode,
		OutputPath: outPath,
		StderrTail: stderrTail,
		Duration:   elapsed,
	}
}

func (r *SubprocessRunner) safeArgs(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		if filepath.IsAbs(a) {
			a = r.safePath(a)
		}
		out[i] = a
	}
	return out
}

func (r *SubprocessRunner) safePath(path string) string {
	if r.cfg.DebugPaths {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Base(path)
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return filepath.Base(path)
}

// resolveFFmpeg finds the configured binary on PATH.
func resolveFFmpeg(preferred string) (string, error) {
	if preferred == "" {
		preferred = "ffmpeg"
	}
	p, err := exec.LookPath(preferred)
	if err != nil {
		return "", fmt.Errorf("configured ffmpeg %q not found", preferred)
	}
	return p, nil
}

// parseVersion pulls "6.1.1" out of "ffmpeg version 6.1.1 Copyright ...".
func parseVersion(out string) string {
	sc := bufio.NewScanner(strings.NewReader(out))
	if !sc.Scan() {
		return ""
	}
	fields := strings.Fields(sc.Text())
	for i, f := range fields {
		if f == "version" && i+1 < len(fields) {
			return fields[i+1]
		}
	}
	return ""
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		b := lw.w.Bytes()
		tail := append([]byte(nil), b[len(b)-lw.limit:]...)
		lw.w.Reset()
		lw.w.Write(tail)
	}
	return n, nil
}
