package compile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

const (
	// CompilationTimeout is the default maximum time to wait for LaTeX compilation
	CompilationTimeout = 30 * time.Second
	// DefaultMaxLogBytes bounds how much compiler output is retained
	DefaultMaxLogBytes = 256 << 10

	sourceName = "resume.tex"
	outputName = "resume.pdf"
)

// Config controls the external compiler invocation
type Config struct {
	Command     string        // compiler binary, e.g. pdflatex
	Args        []string      // extra leading arguments
	Timeout     time.Duration // hard limit per invocation
	WorkRoot    string        // parent for scratch directories; empty uses os.TempDir
	MaxLogBytes int
}

// DefaultConfig returns pdflatex with a 30 second timeout
func DefaultConfig() Config {
	return Config{
		Command:     "pdflatex",
		Timeout:     CompilationTimeout,
		MaxLogBytes: DefaultMaxLogBytes,
	}
}

// Result is a successful compilation
type Result struct {
	PDF      []byte
	Pages    int
	Log      string
	Duration time.Duration
}

// Compiler turns typeset source into a PDF
type Compiler struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Compiler, filling unset config fields with defaults
func New(cfg Config, logger *slog.Logger) *Compiler {
	defaults := DefaultConfig()
	if cfg.Command == "" {
		cfg.Command = defaults.Command
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.MaxLogBytes <= 0 {
		cfg.MaxLogBytes = defaults.MaxLogBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Compiler{cfg: cfg, logger: logger}
}

// Compile runs the compiler over source in a fresh scratch directory that is always removed.
// Output is only returned when the compiler exits cleanly.
func (c *Compiler) Compile(ctx context.Context, source []byte) (*Result, error) {
	if err := CheckSource(source); err != nil {
		return nil, err
	}

	binary, err := exec.LookPath(c.cfg.Command)
	if err != nil {
		return nil, &CompilationError{
			Kind:    KindMissingCompiler,
			Message: fmt.Sprintf("%s not found in PATH. Please install a LaTeX distribution (e.g., TeX Live)", c.cfg.Command),
			Cause:   err,
		}
	}

	workDir, err := os.MkdirTemp(c.cfg.WorkRoot, "latex-compile-*")
	if err != nil {
		return nil, &CompilationError{Kind: KindWorkspace, Message: "failed to create temporary working directory", Cause: err}
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			c.logger.Warn("failed to remove compile directory", "dir", workDir, "error", err)
		}
	}()

	if err := os.WriteFile(filepath.Join(workDir, sourceName), source, 0o600); err != nil {
		return nil, &CompilationError{Kind: KindWorkspace, Message: "failed to write LaTeX source", Cause: err}
	}

	runCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	args := append(append([]string{}, c.cfg.Args...),
		"-interaction=nonstopmode",
		"-halt-on-error",
		"-no-shell-escape",
		"-output-directory", workDir,
		sourceName,
	)
	cmd := exec.CommandContext(runCtx, binary, args...)
	cmd.Dir = workDir
	cmd.Env = append(os.Environ(),
		"SOURCE_DATE_EPOCH=0",
		"FORCE_SOURCE_DATE=1",
		"TEXMFOUTPUT="+workDir,
		"openin_any=p",
		"openout_any=p",
		"shell_escape=f",
	)
	cmd.WaitDelay = 2 * time.Second

	logBuf := newBoundedBuffer(c.cfg.MaxLogBytes)
	cmd.Stdout = logBuf
	cmd.Stderr = logBuf

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)
	logOutput := logBuf.String()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return nil, &CompilationError{
			Kind:      KindTimeout,
			Message:   fmt.Sprintf("compiler exceeded %s", c.cfg.Timeout),
			LogOutput: logOutput,
			Cause:     runErr,
		}
	}
	if runErr != nil {
		kind, msg := KindExit, "compiler exited with an error"
		if first := firstLaTeXError(logOutput); first != "" {
			kind, msg = KindSyntax, first
		}
		return nil, &CompilationError{Kind: kind, Message: msg, LogOutput: logOutput, Cause: runErr}
	}

	pdfPath := filepath.Join(workDir, outputName)
	pdf, err := os.ReadFile(pdfPath)
	if err != nil || len(pdf) == 0 {
		return nil, &CompilationError{
			Kind:      KindNoOutput,
			Message:   "LaTeX compilation failed: PDF was not generated",
			LogOutput: logOutput,
			Cause:     err,
		}
	}

	pages, ok := pagesFromLog(logOutput)
	if !ok {
		if n, err := countPagesWithPdfinfo(pdfPath); err == nil {
			pages = n
		}
	}

	c.logger.Debug("compiled document", "pages", pages, "bytes", len(pdf), "duration", elapsed)
	return &Result{PDF: pdf, Pages: pages, Log: logOutput, Duration: elapsed}, nil
}

// boundedBuffer keeps the first limit bytes written and silently drops the rest
type boundedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func newBoundedBuffer(limit int) *boundedBuffer {
	return &boundedBuffer{limit: limit}
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	remaining := b.limit - b.buf.Len()
	if remaining <= 0 {
		b.truncated = len(p) > 0 || b.truncated
		return len(p), nil
	}
	if len(p) > remaining {
		b.buf.Write(p[:remaining])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *boundedBuffer) String() string {
	if b.truncated {
		return b.buf.String() + "\n[log truncated]\n"
	}
	return b.buf.String()
}
