package image

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// ImagePreprocessor is one step of the OCR preprocessing pipeline.
type ImagePreprocessor interface {
	Process(img image.Image) (image.Image, error)
}

// PreprocessConfig tunes the default pipeline.
type PreprocessConfig struct {
	MinWidth        int
	DenoiseStrength float64
	Contrast        float64
	SharpenStrength float64
}

func DefaultPreprocessConfig() PreprocessConfig {
	return PreprocessConfig{
		MinWidth:        1000,
		DenoiseStrength: 0.5,
		Contrast:        20,
		SharpenStrength: 0.5,
	}
}

// NewPipeline builds grayscale, upscale, denoise, contrast and sharpen steps.
func NewPipeline(cfg PreprocessConfig) []ImagePreprocessor {
	return []ImagePreprocessor{
		NewGrayscaleProcessor(),
		NewUpscaleProcessor(cfg.MinWidth),
		NewDenoiseProcessor(cfg.DenoiseStrength),
		NewContrastNormalizationProcessor(cfg.Contrast),
		NewSharpenProcessor(cfg.SharpenStrength),
	}
}

// Preprocess decodes data, runs the pipeline and re-encodes the result as
// PNG. Formats imaging cannot decode return an error and the caller keeps
// the original bytes.
func Preprocess(data []byte, steps []ImagePreprocessor) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	for _, step := range steps {
		img, err = step.Process(img)
		if err != nil {
			return nil, fmt.Errorf("preprocessing failed: %w", err)
		}
		if img == nil {
			return nil, fmt.Errorf("preprocessor returned nil image")
		}
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), nil
}

type GrayscaleProcessor struct{}

func NewGrayscaleProcessor() *GrayscaleProcessor {
	return &GrayscaleProcessor{}
}

func (p *GrayscaleProcessor) Process(img image.Image) (image.Image, error) {
	return imaging.Grayscale(img), nil
}

// UpscaleProcessor enlarges images narrower than minWidth; small scans
// recognize poorly.
type UpscaleProcessor struct {
	minWidth int
}

func NewUpscaleProcessor(minWidth int) *UpscaleProcessor {
	return &UpscaleProcessor{minWidth: minWidth}
}

func (p *UpscaleProcessor) Process(img image.Image) (image.Image, error) {
	w := img.Bounds().Dx()
	if p.minWidth <= 0 || w == 0 || w >= p.minWidth {
		return img, nil
	}
	return imaging.Resize(img, p.minWidth, 0, imaging.Lanczos), nil
}

type DenoiseProcessor struct {
	strength float64
}

func NewDenoiseProcessor(strength float64) *DenoiseProcessor {
	return &DenoiseProcessor{strength: strength}
}

func (p *DenoiseProcessor) Process(img image.Image) (image.Image, error) {
	if p.strength <= 0 {
		return img, nil
	}
	return imaging.Blur(img, p.strength), nil
}

type ContrastNormalizationProcessor struct {
	amount float64
}

func NewContrastNormalizationProcessor(amount float64) *ContrastNormalizationProcessor {
	return &ContrastNormalizationProcessor{amount: amount}
}

func (p *ContrastNormalizationProcessor) Process(img image.Image) (image.Image, error) {
	return imaging.AdjustContrast(img, p.amount), nil
}

type SharpenProcessor struct {
	strength float64
}

func NewSharpenProcessor(strength float64) *SharpenProcessor {
	return &SharpenProcessor{strength: strength}
}

func (p *SharpenProcessor) Process(img image.Image) (image.Image, error) {
	if p.strength <= 0 {
		return img, nil
	}
	return imaging.Sharpen(img, p.strength), nil
}
