package documents

import (
	"bytes"
	"context"
	"os"
	"sync"
	"unicode/utf8"

	"github.com/BearBump/SellerFlow/internal/models"
	"github.com/go-pdf/fpdf"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type ImageSource interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, bool)
}

// Renderer строит лист подбора и стикеры из уже отсортированных строк.
// Одинаковые строки и время дают побайтно одинаковые документы.
type Renderer struct {
	images ImageSource
	font   []byte
	logger *zap.Logger

	concurrency int
	jpegQuality int
}

func New(images ImageSource, logger *zap.Logger) *Renderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Renderer{
		images:      images,
		logger:      logger,
		concurrency: 4,
		jpegQuality: 80,
	}
}

// WithFont подключает TTF с кириллицей. Без него используется Helvetica с транслитерацией.
func (r *Renderer) WithFont(path string) *Renderer {
	if path == "" {
		return r
	}
	b, err := os.ReadFile(path)
	if err == nil {
		err = checkFont(b)
	}
	if err != nil {
		r.logger.Warn("pdf font not loaded, falling back to core font", zap.String("path", path), zap.Error(err))
		return r
	}
	r.font = b
	return r
}

// checkFont подключает шрифт к пустому документу. Сигнатуру проверяем заранее:
// на не-TTF fpdf пишет ошибку в stdout и молча не регистрирует шрифт, а на
// TTF без нужных таблиц падает с паникой.
func checkFont(b []byte) (err error) {
	if len(b) < 4 || (!bytes.Equal(b[:4], []byte{0, 1, 0, 0}) && string(b[:4]) != "true") {
		return errors.New("not a TrueType font")
	}
	defer func() {
		if p := recover(); p != nil {
			err = errors.Errorf("parse font: %v", p)
		}
	}()
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.AddUTF8FontFromBytes("check", "", b)
	pdf.SetFont("check", "", 10)
	return errors.Wrap(pdf.Error(), "load font")
}

func (r *Renderer) WithSettings(concurrency, jpegQuality int) *Renderer {
	if concurrency > 0 {
		r.concurrency = concurrency
	}
	if jpegQuality > 0 && jpegQuality <= 100 {
		r.jpegQuality = jpegQuality
	}
	return r
}

type doc struct {
	pdf    *fpdf.Fpdf
	family string
	utf8   bool
	tr     func(string) string
	images map[string]bool
}

func (r *Renderer) newDoc(init *fpdf.InitType, meta models.DocumentMeta) *doc {
	pdf := fpdf.NewCustom(init)
	pdf.SetCreationDate(meta.GeneratedAt)
	pdf.SetModificationDate(meta.GeneratedAt)
	pdf.SetCatalogSort(true)
	pdf.SetAutoPageBreak(false, 0)

	d := &doc{pdf: pdf, images: map[string]bool{}}
	if len(r.font) > 0 {
		pdf.AddUTF8FontFromBytes("body", "", r.font)
		d.family, d.utf8 = "body", true
		d.tr = func(s string) string { return s }
	} else {
		cp := pdf.UnicodeTranslatorFromDescriptor("")
		d.family = "Helvetica"
		d.tr = func(s string) string { return cp(translit(s)) }
	}
	return d
}

func (d *doc) font(style string, size float64) {
	if d.utf8 {
		// у TTF подключено только начертание regular
		style = ""
	}
	d.pdf.SetFont(d.family, style, size)
}

// fit переводит строку в кодировку шрифта и обрезает её по ширине ячейки.
func (d *doc) fit(s string, w float64) string {
	s = d.tr(s)
	const pad = 2
	if d.pdf.GetStringWidth(s) <= w-pad {
		return s
	}
	ell := d.tr("...")
	for len(s) > 0 && d.pdf.GetStringWidth(s+ell) > w-pad {
		if d.utf8 {
			_, size := utf8.DecodeLastRuneInString(s)
			s = s[:len(s)-size]
		} else {
			s = s[:len(s)-1]
		}
	}
	return s + ell
}

// image регистрирует картинку один раз на документ и рисует её в рамке.
func (d *doc) image(name string, img pdfImage, x, y, w, h float64) {
	opts := fpdf.ImageOptions{ImageType: "JPG"}
	if !d.images[name] {
		d.pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(img.data))
		d.images[name] = true
	}
	iw, ih := img.fitBox(w, h)
	d.pdf.ImageOptions(name, x+(w-iw)/2, y+(h-ih)/2, iw, ih, false, opts, 0, "")
}

func (d *doc) output() ([]byte, error) {
	var buf bytes.Buffer
	if err := d.pdf.Output(&buf); err != nil {
		return nil, errors.Wrap(err, "pdf output")
	}
	return buf.Bytes(), nil
}

// prefetch скачивает картинки карточек параллельно, но не больше concurrency за раз.
func (r *Renderer) prefetch(ctx context.Context, rows []models.CombinedRow) map[string]pdfImage {
	out := map[string]pdfImage{}
	if r.images == nil {
		return out
	}
	var urls []string
	seen := map[string]struct{}{}
	for _, row := range rows {
		if row.ImageURL == "" {
			continue
		}
		if _, ok := seen[row.ImageURL]; ok {
			continue
		}
		seen[row.ImageURL] = struct{}{}
		urls = append(urls, row.ImageURL)
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, r.concurrency)
	)
	for _, u := range urls {
		sem <- struct{}{}
		wg.Add(1)
		go func(u string) {
			defer func() {
				<-sem
				wg.Done()
			}()
			b, ok := r.images.Fetch(ctx, u)
			if !ok {
				return
			}
			img, ok := embeddable(b, r.jpegQuality)
			if !ok {
				r.logger.Warn("image is not embeddable", zap.String("url", u))
				return
			}
			mu.Lock()
			out[u] = img
			mu.Unlock()
		}(u)
	}
	wg.Wait()
	return out
}
