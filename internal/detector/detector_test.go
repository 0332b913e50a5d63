package detector

import (
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

// stubSession replays a fixed score vector instead of running a real model.
type stubSession struct {
	scores []float32
	err    error
	calls  int
}

func (s *stubSession) run(input []float32) ([]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.scores, nil
}

func (s *stubSession) destroy() error { return nil }

// loadStub puts a detector into the "loaded" state without ONNX Runtime.
func loadStub(d *Detector, scores []float32) *stubSession {
	sess := &stubSession{scores: scores}
	d.mu.Lock()
	d.sess = sess
	d.modelPath = "stub.onnx"
	d.format = formatONNX
	d.numClasses = len(scores)
	d.mu.Unlock()
	return sess
}

func writeTestImage(t *testing.T, dir string) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 224, 224))
	green := color.RGBA{G: 128, A: 255}
	for y := 0; y < 224; y++ {
		for x := 0; x < 224; x++ {
			img.Set(x, y, green)
		}
	}

	path := filepath.Join(dir, "leaf.jpg")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create test image: %v", err)
	}
	defer f.Close()

	if err := jpeg.Encode(f, img, nil); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return path
}

func writeLabels(t *testing.T, dir, content string) string {
	t.Helper()

	path := filepath.Join(dir, "class_indices.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write labels: %v", err)
	}
	return path
}

func TestPredictBeforeLoad(t *testing.T) {
	d := New(zap.NewNop())

	_, err := d.Predict("whatever.jpg")
	if !errors.Is(err, ErrModelNotLoaded) {
		t.Fatalf("expected ErrModelNotLoaded, got %v", err)
	}
}

func TestLoadModelMissingFile(t *testing.T) {
	d := New(zap.NewNop())

	if err := d.LoadModel(filepath.Join(t.TempDir(), "nope.onnx")); err == nil {
		t.Fatal("expected error for missing model file")
	}
	if d.Loaded() {
		t.Fatal("detector must stay unloaded after a failed load")
	}
}

func TestLoadModelUnsupportedFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.h5")
	if err := os.WriteFile(path, []byte("legacy"), 0o644); err != nil {
		t.Fatal(err)
	}

	d := New(zap.NewNop())
	err := d.LoadModel(path)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestPredictArgmaxAndLabel(t *testing.T) {
	dir := t.TempDir()
	imgPath := writeTestImage(t, dir)
	labelsPath := writeLabels(t, dir, `{"0":"Tomato___Early_blight","3":"Tomato___healthy"}`)

	d := New(zap.NewNop())
	loadStub(d, []float32{0, 0, 0, 0.91, 0.09})
	if err := d.LoadLabels(labelsPath); err != nil {
		t.Fatalf("LoadLabels: %v", err)
	}

	result, err := d.Predict(imgPath)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}

	if result.ClassIndex != 3 {
		t.Errorf("ClassIndex = %d, want 3", result.ClassIndex)
	}
	if result.Label != "Tomato___healthy" {
		t.Errorf("Label = %q, want Tomato___healthy", result.Label)
	}
	if result.Confidence < 0.909 || result.Confidence > 0.911 {
		t.Errorf("Confidence = %v, want 0.91", result.Confidence)
	}
	if result.ClassIndex < 0 || result.ClassIndex >= d.Info().NumClasses {
		t.Errorf("ClassIndex %d out of range [0,%d)", result.ClassIndex, d.Info().NumClasses)
	}
}

func TestPredictUnknownLabelWithoutLabelMap(t *testing.T) {
	dir := t.TempDir()
	imgPath := writeTestImage(t, dir)

	d := New(zap.NewNop())
	loadStub(d, []float32{0.2, 0.8})

	// A missing labels file must leave the map nil.
	if err := d.LoadLabels(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatal("expected error for missing labels file")
	}

	result, err := d.Predict(imgPath)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if result.Label != "Unknown" {
		t.Errorf("Label = %q, want Unknown", result.Label)
	}
	if result.ClassIndex != 1 {
		t.Errorf("ClassIndex = %d, want 1", result.ClassIndex)
	}
}

func TestPredictUnknownLabelForMissingKey(t *testing.T) {
	dir := t.TempDir()
	imgPath := writeTestImage(t, dir)
	labelsPath := writeLabels(t, dir, `{"0":"Potato___healthy"}`)

	d := New(zap.NewNop())
	loadStub(d, []float32{0.1, 0.9})
	if err := d.LoadLabels(labelsPath); err != nil {
		t.Fatalf("LoadLabels: %v", err)
	}

	result, err := d.Predict(imgPath)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if result.Label != "Unknown" {
		t.Errorf("Label = %q, want Unknown", result.Label)
	}
}

func TestPredictImageDecodeError(t *testing.T) {
	dir := t.TempDir()
	bogus := filepath.Join(dir, "not_an_image.jpg")
	if err := os.WriteFile(bogus, []byte("plain text"), 0o644); err != nil {
		t.Fatal(err)
	}

	d := New(zap.NewNop())
	loadStub(d, []float32{1})

	_, err := d.Predict(bogus)
	if !errors.Is(err, ErrImageDecode) {
		t.Fatalf("expected ErrImageDecode, got %v", err)
	}
}

func TestPredictBatchIsolatesFailures(t *testing.T) {
	dir := t.TempDir()
	good := writeTestImage(t, dir)
	bad := filepath.Join(dir, "missing.jpg")

	d := New(zap.NewNop())
	loadStub(d, []float32{0.3, 0.7})

	items := d.PredictBatch([]string{good, bad, good})

	if len(items) != 3 {
		t.Fatalf("got %d items, want 3", len(items))
	}
	if items[0].ImagePath != good || items[1].ImagePath != bad || items[2].ImagePath != good {
		t.Fatal("batch results out of input order")
	}
	if items[0].Err != nil || items[2].Err != nil {
		t.Errorf("valid items failed: %v, %v", items[0].Err, items[2].Err)
	}
	if items[1].Err == nil {
		t.Error("expected error for missing image")
	}
	if items[0].Result == nil || items[0].Result.ClassIndex != 1 {
		t.Errorf("unexpected result for first item: %+v", items[0].Result)
	}
}

func TestResolveGeometryChannels(t *testing.T) {
	gray := &modelInfo{inputDims: []int64{1, 1, 28, 28}}

	d := New(zap.NewNop())
	w, h, c, layout := d.resolveGeometry(gray)
	if w != 28 || h != 28 || c != 1 || layout != LayoutNCHW {
		t.Errorf("resolveGeometry = %dx%dx%d %s, want 28x28x1 nchw", w, h, c, layout)
	}

	// Pinned size still keeps the model's channel count.
	d = New(zap.NewNop(), WithImageSize(64, 64))
	w, h, c, _ = d.resolveGeometry(gray)
	if w != 64 || h != 64 || c != 1 {
		t.Errorf("resolveGeometry = %dx%dx%d, want 64x64x1", w, h, c)
	}
}

func TestModelFormat(t *testing.T) {
	tests := []struct {
		path    string
		want    string
		wantErr bool
	}{
		{path: "model.onnx", want: formatONNX},
		{path: "MODEL.ONNX", want: formatONNX},
		{path: "model.ort", want: formatORTOptimized},
		{path: "model.h5", wantErr: true},
		{path: "model.keras", wantErr: true},
		{path: "model", wantErr: true},
	}

	for _, tt := range tests {
		got, err := modelFormat(tt.path)
		if tt.wantErr {
			if err == nil {
				t.Errorf("modelFormat(%q): expected error", tt.path)
			}
			continue
		}
		if err != nil {
			t.Errorf("modelFormat(%q): %v", tt.path, err)
			continue
		}
		if got != tt.want {
			t.Errorf("modelFormat(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
