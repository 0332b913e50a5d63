package detector

import "errors"

var (
	// ErrModelNotLoaded is returned by Predict before any successful LoadModel.
	ErrModelNotLoaded = errors.New("model not loaded")

	// ErrImageDecode wraps failures to decode an uploaded image.
	ErrImageDecode = errors.New("failed to decode image")

	// ErrUnsupportedFormat is returned for model files that are neither
	// .onnx nor .ort containers.
	ErrUnsupportedFormat = errors.New("unsupported model format")
)
