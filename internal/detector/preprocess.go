package detector

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strings"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
)

// normalization selects the pixel scaling convention applied during
// preprocessing.
type normalization int

const (
	// normScale maps [0,255] to [0,1], the default training convention.
	normScale normalization = iota
	// normImageNet additionally applies the ImageNet per-channel mean/std,
	// used by EfficientNet-family backbones.
	normImageNet
)

var (
	imagenetMean = [3]float32{0.485, 0.456, 0.406}
	imagenetStd  = [3]float32{0.229, 0.224, 0.225}
)

// detectNormalization picks the preprocessing convention by substring match
// on the model file name and its declared tensor names.
func detectNormalization(blob string) normalization {
	if strings.Contains(strings.ToLower(blob), "efficientnet") {
		return normImageNet
	}
	return normScale
}

// Preprocess decodes the image at path, resizes it to the detector's target
// size, normalizes pixel intensities, and returns a flat float32 tensor with
// a leading batch dimension of 1 in the detector's input layout. Color input
// fills three channels; models declaring a single input channel get the
// luminance plane instead.
func (d *Detector) Preprocess(imagePath string) ([]float32, error) {
	d.mu.RLock()
	width, height := d.width, d.height
	channels := d.channels
	layout := d.layout
	norm := d.norm
	d.mu.RUnlock()

	f, err := os.Open(imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open image %s: %w", imagePath, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrImageDecode, imagePath, err)
	}

	resized := resize.Resize(uint(width), uint(height), img, resize.Lanczos3)

	data := make([]float32, channels*width*height)
	bounds := resized.Bounds()

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := resized.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			px := [3]float32{
				float32(r) / 65535.0,
				float32(g) / 65535.0,
				float32(b) / 65535.0,
			}

			if norm == normImageNet {
				for c := 0; c < 3; c++ {
					px[c] = (px[c] - imagenetMean[c]) / imagenetStd[c]
				}
			}

			idx := y*width + x
			if channels == 1 {
				// Rec. 601 luma; for C=1 the flat ordering is the same
				// under either layout.
				data[idx] = 0.299*px[0] + 0.587*px[1] + 0.114*px[2]
				continue
			}

			if layout == LayoutNCHW {
				for c := 0; c < 3; c++ {
					data[c*width*height+idx] = px[c]
				}
			} else {
				for c := 0; c < 3; c++ {
					data[idx*3+c] = px[c]
				}
			}
		}
	}

	return data, nil
}
