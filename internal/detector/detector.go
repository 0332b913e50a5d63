package detector

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/gammazero/workerpool"
	"go.uber.org/zap"
)

const (
	defaultImageSize   = 224
	batchWorkers       = 4
	unknownLabel       = "Unknown"
	formatONNX         = "onnx"
	formatORTOptimized = "ort"
)

// Detector holds a loaded classification model and its label map. The zero
// state (no model) is valid: Predict reports ErrModelNotLoaded until a
// LoadModel succeeds. Reads vastly outnumber writes after initialization, so
// state is guarded by an RWMutex; concurrent predictions against a loaded
// model run in parallel, with thread safety of the forward pass delegated to
// ONNX Runtime.
type Detector struct {
	mu sync.RWMutex

	sess      session
	modelPath string
	format    string
	labels    map[string]string

	width    int
	height   int
	channels int
	layout   Layout
	norm     normalization

	numClasses int

	// geometry pinned by configuration; skips shape introspection when set
	fixedWidth  int
	fixedHeight int
	fixedLayout Layout

	logger *zap.Logger
}

type Option func(*Detector)

// WithImageSize pins the input geometry instead of inferring it from the
// model's declared input shape.
func WithImageSize(width, height int) Option {
	return func(d *Detector) {
		d.fixedWidth = width
		d.fixedHeight = height
	}
}

// WithLayout pins the input channel ordering.
func WithLayout(layout Layout) Option {
	return func(d *Detector) {
		d.fixedLayout = layout
	}
}

// New allocates an empty detector shell. Construction never fails; loading
// happens separately so a bad model path leaves a recognizable "unloaded"
// state instead of a crash at startup.
func New(logger *zap.Logger, opts ...Option) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &Detector{
		width:    defaultImageSize,
		height:   defaultImageSize,
		channels: 3,
		layout:   LayoutNHWC,
		norm:     normScale,
		logger:   logger,
	}

	for _, opt := range opts {
		opt(d)
	}
	if d.fixedWidth > 0 && d.fixedHeight > 0 {
		d.width, d.height = d.fixedWidth, d.fixedHeight
	}
	if d.fixedLayout != "" {
		d.layout = d.fixedLayout
	}

	return d
}

// LoadModel reads a serialized model from path. Accepted containers are the
// standard .onnx graph and the pre-optimized .ort runtime format; both load
// through the same session API. On failure the previous state is left
// untouched.
func (d *Detector) LoadModel(path string) error {
	if _, err := os.Stat(path); err != nil {
		err = fmt.Errorf("model file not found: %s: %w", path, err)
		d.logger.Error("failed to load model", zap.String("path", path), zap.Error(err))
		return err
	}

	format, err := modelFormat(path)
	if err != nil {
		d.logger.Error("failed to load model", zap.String("path", path), zap.Error(err))
		return err
	}

	info, err := inspectModel(path)
	if err != nil {
		d.logger.Error("failed to inspect model", zap.String("path", path), zap.Error(err))
		return err
	}

	width, height, channels, layout := d.resolveGeometry(info)

	inputShape := make([]int64, 0, 4)
	if layout == LayoutNCHW {
		inputShape = append(inputShape, 1, int64(channels), int64(height), int64(width))
	} else {
		inputShape = append(inputShape, 1, int64(height), int64(width), int64(channels))
	}

	sess, err := newORTSession(path, info, inputShape)
	if err != nil {
		d.logger.Error("failed to create inference session", zap.String("path", path), zap.Error(err))
		return err
	}

	norm := detectNormalization(filepath.Base(path) + " " + info.namesBlob)

	d.mu.Lock()
	old := d.sess
	d.sess = sess
	d.modelPath = path
	d.format = format
	d.width, d.height = width, height
	d.channels = channels
	d.layout = layout
	d.norm = norm
	d.numClasses = info.numClasses
	d.mu.Unlock()

	if old != nil {
		if err := old.destroy(); err != nil {
			d.logger.Warn("failed to destroy previous session", zap.Error(err))
		}
	}

	d.logger.Info("model loaded",
		zap.String("path", path),
		zap.String("format", format),
		zap.Int("width", width),
		zap.Int("height", height),
		zap.Int("channels", channels),
		zap.String("layout", string(layout)),
		zap.Int("num_classes", info.numClasses),
	)
	return nil
}

// resolveGeometry applies, in order of precedence: explicit configuration,
// the model's declared input shape, and the 224x224 RGB default. The channel
// count always comes from the model's shape when available; configuration
// only pins the spatial size and layout.
func (d *Detector) resolveGeometry(info *modelInfo) (int, int, int, Layout) {
	w, h, channels, layout, ok := inferGeometry(info.inputDims)
	if !ok {
		channels = 3
	}

	if d.fixedWidth > 0 && d.fixedHeight > 0 {
		fixed := d.fixedLayout
		if fixed == "" {
			fixed = LayoutNHWC
		}
		return d.fixedWidth, d.fixedHeight, channels, fixed
	}

	if ok {
		return w, h, channels, layout
	}

	d.logger.Warn("could not infer input geometry from model, using default",
		zap.Int64s("dims", info.inputDims),
		zap.Int("default", defaultImageSize))
	return defaultImageSize, defaultImageSize, 3, LayoutNHWC
}

// LoadLabels reads a JSON object mapping stringified class indices to label
// names. On failure the label map stays nil and lookups return "Unknown".
func (d *Detector) LoadLabels(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		d.logger.Error("failed to read class indices", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("failed to read class indices: %w", err)
	}

	var labels map[string]string
	if err := json.Unmarshal(raw, &labels); err != nil {
		d.logger.Error("failed to parse class indices", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("failed to parse class indices: %w", err)
	}

	d.mu.Lock()
	d.labels = labels
	d.mu.Unlock()

	d.logger.Info("class indices loaded", zap.String("path", path), zap.Int("count", len(labels)))
	return nil
}

// Predict runs one forward pass on the image at imagePath and returns the
// argmax class with its label and raw confidence.
func (d *Detector) Predict(imagePath string) (*Result, error) {
	d.mu.RLock()
	sess := d.sess
	d.mu.RUnlock()

	if sess == nil {
		return nil, ErrModelNotLoaded
	}

	input, err := d.Preprocess(imagePath)
	if err != nil {
		return nil, err
	}

	scores, err := sess.run(input)
	if err != nil {
		return nil, fmt.Errorf("prediction failed: %w", err)
	}
	if len(scores) == 0 {
		return nil, fmt.Errorf("prediction failed: model produced no scores")
	}

	best := 0
	for i, score := range scores {
		if score > scores[best] {
			best = i
		}
	}

	return &Result{
		Label:      d.labelFor(best),
		Confidence: scores[best],
		ClassIndex: best,
		Scores:     scores,
	}, nil
}

// PredictBatch predicts each image independently on a bounded worker pool.
// A failed item carries its error and never aborts the others; results come
// back in input order.
func (d *Detector) PredictBatch(imagePaths []string) []BatchItem {
	items := make([]BatchItem, len(imagePaths))
	wp := workerpool.New(batchWorkers)

	for i, path := range imagePaths {
		i, path := i, path
		wp.Submit(func() {
			result, err := d.Predict(path)
			items[i] = BatchItem{ImagePath: path, Result: result, Err: err}
		})
	}
	wp.StopWait()

	return items
}

// Loaded reports whether a model is currently loaded.
func (d *Detector) Loaded() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.sess != nil
}

// Info returns the detector state for health reporting.
func (d *Detector) Info() Info {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return Info{
		ModelPath:    d.modelPath,
		Format:       d.format,
		LabelsLoaded: d.labels != nil,
		ImageWidth:   d.width,
		ImageHeight:  d.height,
		NumClasses:   d.numClasses,
	}
}

// Close releases the inference session, if any.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.sess == nil {
		return nil
	}
	err := d.sess.destroy()
	d.sess = nil
	return err
}

func (d *Detector) labelFor(index int) string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.labels == nil {
		return unknownLabel
	}
	label, ok := d.labels[strconv.Itoa(index)]
	if !ok {
		return unknownLabel
	}
	return label
}

func modelFormat(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".onnx":
		return formatONNX, nil
	case ".ort":
		return formatORTOptimized, nil
	default:
		return "", fmt.Errorf("%w: %s (supported: .onnx, .ort)", ErrUnsupportedFormat, filepath.Ext(path))
	}
}
