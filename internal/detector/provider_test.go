package detector

import (
	"path/filepath"
	"sync"
	"testing"

	"go.uber.org/zap"
)

func TestProviderGetIdentity(t *testing.T) {
	p := NewProvider(zap.NewNop())

	const callers = 32
	results := make([]*Detector, callers)

	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			results[i] = p.Get()
		}(i)
	}
	wg.Wait()

	first := results[0]
	if first == nil {
		t.Fatal("Get returned nil")
	}
	for i, d := range results {
		if d != first {
			t.Fatalf("caller %d observed a different detector instance", i)
		}
	}
}

func TestProviderInitializeMissingModel(t *testing.T) {
	p := NewProvider(zap.NewNop())

	err := p.Initialize(filepath.Join(t.TempDir(), "absent.onnx"), "")
	if err == nil {
		t.Fatal("expected error for missing model")
	}
	if p.Loaded() {
		t.Fatal("provider must report unloaded after failed initialization")
	}
}

func TestProviderInitializeToleratesMissingLabels(t *testing.T) {
	dir := t.TempDir()
	imgPath := writeTestImage(t, dir)

	p := NewProvider(zap.NewNop())
	loadStub(p.Get(), []float32{0.9, 0.1})

	// Labels failure alone must not fail initialization semantics: the
	// detector keeps working and reports Unknown.
	if err := p.Get().LoadLabels(filepath.Join(dir, "absent.json")); err == nil {
		t.Fatal("expected labels load error")
	}

	result, err := p.Predict(imgPath)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if result.Label != "Unknown" {
		t.Errorf("Label = %q, want Unknown", result.Label)
	}
}
