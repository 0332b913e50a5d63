package detector

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ortEnv manages global ONNX Runtime initialization (process-wide singleton).
var ortEnv struct {
	once sync.Once
	err  error
}

// initORT initializes the ONNX Runtime environment. Safe to call multiple
// times; only the first call has any effect.
func initORT(libPath string) error {
	ortEnv.once.Do(func() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		ortEnv.err = ort.InitializeEnvironment()
	})
	return ortEnv.err
}

// session is the forward-pass boundary. The real implementation wraps an
// ONNX Runtime session; tests substitute a deterministic stub.
type session interface {
	run(input []float32) ([]float32, error)
	destroy() error
}

type ortSession struct {
	sess       *ort.DynamicAdvancedSession
	inputShape []int64
	numClasses int
}

// modelInfo is everything LoadModel learns from introspecting a model file.
type modelInfo struct {
	inputName   string
	outputName  string
	inputDims   []int64
	numClasses  int
	namesBlob   string // lowercased tensor names, for backbone detection
}

// inspectModel reads the model's declared inputs and outputs without
// creating a session.
func inspectModel(path string) (*modelInfo, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model info: %w", err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, fmt.Errorf("model declares no inputs or outputs")
	}

	outDims := outputs[0].Dimensions
	numClasses := 0
	if len(outDims) > 0 {
		numClasses = int(outDims[len(outDims)-1])
	}

	var names []string
	for _, io := range append(inputs, outputs...) {
		names = append(names, strings.ToLower(io.Name))
	}

	return &modelInfo{
		inputName:  inputs[0].Name,
		outputName: outputs[0].Name,
		inputDims:  inputs[0].Dimensions,
		numClasses: numClasses,
		namesBlob:  strings.Join(names, " "),
	}, nil
}

// newORTSession creates a single-input single-output inference session.
// inputShape carries a leading batch dimension of 1.
func newORTSession(path string, info *modelInfo, inputShape []int64) (*ortSession, error) {
	// The ONNX Runtime shared library may be shipped alongside the model
	// files; fall back to the system default otherwise.
	libPath := filepath.Join(filepath.Dir(path), "libonnxruntime.so")
	if _, err := os.Stat(libPath); err != nil {
		libPath = ""
	}
	if err := initORT(libPath); err != nil {
		return nil, fmt.Errorf("failed to initialize onnx runtime: %w", err)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer opts.Destroy()

	sess, err := ort.NewDynamicAdvancedSession(
		path,
		[]string{info.inputName},
		[]string{info.outputName},
		opts,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &ortSession{
		sess:       sess,
		inputShape: inputShape,
		numClasses: info.numClasses,
	}, nil
}

func (s *ortSession) run(input []float32) ([]float32, error) {
	in, err := ort.NewTensor(ort.NewShape(s.inputShape...), input)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer in.Destroy()

	out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(s.numClasses)))
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer out.Destroy()

	if err := s.sess.Run([]ort.Value{in}, []ort.Value{out}); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	// Copy data out before the tensor is destroyed.
	src := out.GetData()
	scores := make([]float32, len(src))
	copy(scores, src)
	return scores, nil
}

func (s *ortSession) destroy() error {
	return s.sess.Destroy()
}

// inferGeometry guesses (width, height, channels, layout) from a model's
// declared input dimensions. A leading batch dimension (dynamic or 1) is
// stripped first; the channel axis is whichever end of the remaining three
// equals 1 or 3, with channels-last winning when both ends qualify. Returns
// ok=false when the shape gives nothing to go on.
func inferGeometry(dims []int64) (width, height, channels int, layout Layout, ok bool) {
	d := make([]int64, len(dims))
	copy(d, dims)

	if len(d) == 4 {
		d = d[1:]
	}
	if len(d) != 3 {
		return 0, 0, 0, "", false
	}

	isChannel := func(v int64) bool { return v == 1 || v == 3 }

	switch {
	case isChannel(d[2]): // [H, W, C]
		height, width, channels = int(d[0]), int(d[1]), int(d[2])
		layout = LayoutNHWC
	case isChannel(d[0]): // [C, H, W]
		height, width, channels = int(d[1]), int(d[2]), int(d[0])
		layout = LayoutNCHW
	default:
		return 0, 0, 0, "", false
	}

	if width <= 0 || height <= 0 {
		return 0, 0, 0, "", false
	}
	return width, height, channels, layout, true
}
