package runner

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeChild replaces the leaf binary with a shell one-liner.
func fakeChild(t *testing.T, script string) {
	t.Helper()
	orig := execCommand
	execCommand = func(ctx context.Context, _ string, _ ...string) *exec.Cmd {
		return exec.CommandContext(ctx, "/bin/sh", "-c", script)
	}
	t.Cleanup(func() { execCommand = orig })
}

func newTestRunner(timeout time.Duration) *Runner {
	return New("model.onnx", "labels.json", timeout,
		WithBinary("/bin/true"), WithLogger(zap.NewNop()))
}

func TestPredictSuccess(t *testing.T) {
	fakeChild(t, `echo '{"disease":"Tomato___healthy","confidence":0.91,"class_index":3}'`)

	r := newTestRunner(5 * time.Second)
	outcome, err := r.Predict(context.Background(), "leaf.jpg")
	require.NoError(t, err)

	assert.False(t, outcome.Failed())
	assert.Equal(t, "Tomato___healthy", outcome.Disease)
	assert.InDelta(t, 0.91, outcome.Confidence, 1e-9)
	assert.Equal(t, 3, outcome.ClassIndex)
}

func TestPredictChildReportsError(t *testing.T) {
	fakeChild(t, `echo '{"error":"Model not loaded"}'; exit 4`)

	r := newTestRunner(5 * time.Second)
	outcome, err := r.Predict(context.Background(), "leaf.jpg")
	require.NoError(t, err)

	assert.True(t, outcome.Failed())
	assert.Equal(t, "Model not loaded", outcome.Error)
	assert.Equal(t, KindSubprocessFailure, outcome.Kind)
}

func TestPredictTimeout(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "child.pid")
	fakeChild(t, `echo $$ > `+pidFile+`; exec sleep 5`)

	r := newTestRunner(1 * time.Second)

	start := time.Now()
	outcome, err := r.Predict(context.Background(), "leaf.jpg")
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.True(t, outcome.Failed())
	assert.Equal(t, KindTimeout, outcome.Kind)
	// The child must be terminated at the deadline, not waited out.
	assert.Less(t, elapsed, 3*time.Second)
	assert.GreaterOrEqual(t, elapsed, 900*time.Millisecond)

	// And it must be gone, not just abandoned.
	raw, err := os.ReadFile(pidFile)
	require.NoError(t, err)
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	require.NoError(t, err)
	assert.Error(t, syscall.Kill(pid, 0), "child process %d still running after timeout", pid)
}

func TestPredictMalformedOutput(t *testing.T) {
	fakeChild(t, `echo 'fatal error: unexpected signal during runtime execution'`)

	r := newTestRunner(5 * time.Second)
	outcome, err := r.Predict(context.Background(), "leaf.jpg")
	require.NoError(t, err)

	assert.True(t, outcome.Failed())
	assert.Equal(t, KindSubprocessFailure, outcome.Kind)
	assert.Contains(t, outcome.Error, "unexpected signal")
}

func TestPredictNonZeroExit(t *testing.T) {
	fakeChild(t, `echo 'cannot open model' >&2; exit 3`)

	r := newTestRunner(5 * time.Second)
	outcome, err := r.Predict(context.Background(), "leaf.jpg")
	require.NoError(t, err)

	assert.True(t, outcome.Failed())
	assert.Equal(t, KindSubprocessFailure, outcome.Kind)
	assert.Contains(t, outcome.Error, "cannot open model")
}

func TestPredictNoBinary(t *testing.T) {
	r := &Runner{timeout: time.Second, logger: zap.NewNop()}

	_, err := r.Predict(context.Background(), "leaf.jpg")
	assert.Error(t, err)
}
