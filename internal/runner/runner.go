// Package runner executes one prediction in a disposable child process so a
// hang or crash inside the inference runtime cannot take down the server.
// Each call pays a cold model load in exchange for full isolation: the child
// loads the model, predicts once, writes a single JSON object to stdout and
// exits.
package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrorKind classifies a failed subprocess prediction.
type ErrorKind string

const (
	// KindTimeout means the child did not exit within the deadline and was
	// terminated.
	KindTimeout ErrorKind = "timeout"
	// KindSubprocessFailure means the child exited non-zero or produced
	// output that is not valid JSON.
	KindSubprocessFailure ErrorKind = "subprocess_failure"
)

// Outcome is the structured result of a subprocess prediction. Exactly one of
// the prediction fields or Error is populated; Kind is set alongside Error.
// Child failures are always converted to an Outcome, never surfaced as a
// raw error to the HTTP layer.
type Outcome struct {
	Disease    string    `json:"disease,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
	ClassIndex int       `json:"class_index,omitempty"`
	Error      string    `json:"error,omitempty"`
	Kind       ErrorKind `json:"kind,omitempty"`
}

// Failed reports whether the outcome is an error variant.
func (o *Outcome) Failed() bool {
	return o.Error != ""
}

// execCommand is swapped out by tests to substitute dummy children.
var execCommand = exec.CommandContext

// Runner launches the `leaf infer` subcommand of the given binary.
type Runner struct {
	bin        string
	modelPath  string
	labelsPath string
	timeout    time.Duration
	logger     *zap.Logger
}

type Option func(*Runner)

// WithBinary overrides the child executable. The default is the running
// binary itself.
func WithBinary(bin string) Option {
	return func(r *Runner) { r.bin = bin }
}

func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// New builds a runner that predicts with the model and labels at the given
// paths, bounded by timeout per prediction.
func New(modelPath, labelsPath string, timeout time.Duration, opts ...Option) *Runner {
	r := &Runner{
		modelPath:  modelPath,
		labelsPath: labelsPath,
		timeout:    timeout,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.bin == "" {
		if bin, err := os.Executable(); err == nil {
			r.bin = bin
		}
	}

	return r
}

// Predict runs one isolated prediction on the image at imagePath. The child
// is killed when it outlives the deadline. The returned outcome is always
// structured; the error return is reserved for the parent's own misuse (an
// unset binary path).
func (r *Runner) Predict(ctx context.Context, imagePath string) (*Outcome, error) {
	if r.bin == "" {
		return nil, fmt.Errorf("runner: no child binary configured")
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	args := []string{"infer", "--image", imagePath}
	if r.modelPath != "" {
		args = append(args, "--model", r.modelPath)
	}
	if r.labelsPath != "" {
		args = append(args, "--labels", r.labelsPath)
	}

	cmd := execCommand(ctx, r.bin, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// Without a wait delay, a killed child whose grandchildren still hold
	// the output pipes would block Run well past the deadline.
	cmd.WaitDelay = time.Second

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if ctx.Err() == context.DeadlineExceeded {
		r.logger.Warn("inference subprocess timed out",
			zap.String("image", imagePath),
			zap.Duration("timeout", r.timeout))
		return &Outcome{
			Error: fmt.Sprintf("prediction timed out after %s", r.timeout),
			Kind:  KindTimeout,
		}, nil
	}

	// The child prints a JSON object even on its own failures, so try to
	// parse stdout before looking at the exit status.
	var out Outcome
	if jsonErr := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &out); jsonErr == nil {
		if out.Failed() && out.Kind == "" {
			out.Kind = KindSubprocessFailure
		}
		r.logger.Debug("inference subprocess finished",
			zap.String("image", imagePath),
			zap.Duration("elapsed", elapsed))
		return &out, nil
	}

	diag := strings.TrimSpace(stderr.String())
	if diag == "" {
		diag = strings.TrimSpace(stdout.String())
	}
	if err != nil {
		diag = fmt.Sprintf("%v: %s", err, diag)
	}

	r.logger.Error("inference subprocess failed",
		zap.String("image", imagePath),
		zap.String("diagnostics", diag))
	return &Outcome{
		Error: fmt.Sprintf("subprocess failed: %s", diag),
		Kind:  KindSubprocessFailure,
	}, nil
}
