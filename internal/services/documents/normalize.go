package documents

import (
	"bytes"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// Normalizer готовит картинку карточки к встраиванию в документ.
type Normalizer interface {
	Normalize(b []byte) ([]byte, error)
}

// ImagingNormalizer: поворот по EXIF, вписывание в MaxPx, перекодирование в JPEG.
type ImagingNormalizer struct {
	MaxPx   int
	Quality int
}

func NewImagingNormalizer(maxPx, quality int) *ImagingNormalizer {
	if maxPx <= 0 {
		maxPx = 400
	}
	if quality <= 0 || quality > 100 {
		quality = 80
	}
	return &ImagingNormalizer{MaxPx: maxPx, Quality: quality}
}

func (n *ImagingNormalizer) Normalize(b []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(b), imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrap(err, "decode image")
	}
	img = imaging.Fit(img, n.MaxPx, n.MaxPx, imaging.Lanczos)
	return encodeJPEG(img, n.Quality)
}

// PassThrough: нормализация выключена, байты идут как есть.
type PassThrough struct{}

func (PassThrough) Normalize(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, errors.New("empty image")
	}
	return b, nil
}

// encodeJPEG кладёт картинку на белый фон: у JPEG нет альфа-канала.
func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	bounds := img.Bounds()
	bg := imaging.New(bounds.Dx(), bounds.Dy(), color.White)
	flat := imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, flat, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, errors.Wrap(err, "encode jpeg")
	}
	return buf.Bytes(), nil
}

type pdfImage struct {
	data          []byte
	width, height int
}

// embeddable проверяет байты и приводит их к JPEG, который fpdf примет без ошибок.
// JPEG отдаётся как есть, остальные форматы перекодируются.
func embeddable(b []byte, quality int) (pdfImage, bool) {
	if len(b) == 0 {
		return pdfImage{}, false
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(b))
	if err != nil || cfg.Width == 0 || cfg.Height == 0 {
		return pdfImage{}, false
	}
	if format == "jpeg" {
		return pdfImage{data: b, width: cfg.Width, height: cfg.Height}, true
	}
	img, err := imaging.Decode(bytes.NewReader(b))
	if err != nil {
		return pdfImage{}, false
	}
	out, err := encodeJPEG(img, quality)
	if err != nil {
		return pdfImage{}, false
	}
	return pdfImage{data: out, width: cfg.Width, height: cfg.Height}, true
}

// fitBox вписывает картинку в w×h с сохранением пропорций.
func (p pdfImage) fitBox(w, h float64) (float64, float64) {
	ratio := float64(p.width) / float64(p.height)
	if w/h > ratio {
		return h * ratio, h
	}
	return w, w / ratio
}
