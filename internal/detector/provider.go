package detector

import (
	"sync"

	"go.uber.org/zap"
)

// Provider owns the process-wide detector. It is constructed once by the
// application's composition root and handed to request handlers, replacing
// the implicit global singleton: the lazy, mutex-guarded construction stays
// so that concurrent early requests never race to build two detectors.
type Provider struct {
	mu     sync.Mutex
	det    *Detector
	opts   []Option
	logger *zap.Logger
}

func NewProvider(logger *zap.Logger, opts ...Option) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{logger: logger, opts: opts}
}

// Get returns the detector, creating it on first call. Every caller observes
// the same instance.
func (p *Provider) Get() *Detector {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.det == nil {
		p.det = New(p.logger, p.opts...)
	}
	return p.det
}

// Initialize loads the model and, when given, the label map. A label-map
// failure is logged but does not fail initialization; a model failure leaves
// the detector unloaded and is returned.
func (p *Provider) Initialize(modelPath, labelsPath string) error {
	det := p.Get()

	if err := det.LoadModel(modelPath); err != nil {
		return err
	}

	if labelsPath != "" {
		if err := det.LoadLabels(labelsPath); err != nil {
			p.logger.Warn("continuing without class indices", zap.Error(err))
		}
	}

	return nil
}

// Predict proxies to the underlying detector.
func (p *Provider) Predict(imagePath string) (*Result, error) {
	return p.Get().Predict(imagePath)
}

// PredictBatch proxies to the underlying detector.
func (p *Provider) PredictBatch(imagePaths []string) []BatchItem {
	return p.Get().PredictBatch(imagePaths)
}

// Loaded proxies to the underlying detector.
func (p *Provider) Loaded() bool {
	return p.Get().Loaded()
}

// Info proxies to the underlying detector.
func (p *Provider) Info() Info {
	return p.Get().Info()
}

// Close releases the detector's session, if one was ever created.
func (p *Provider) Close() error {
	p.mu.Lock()
	det := p.det
	p.mu.Unlock()

	if det == nil {
		return nil
	}
	return det.Close()
}
