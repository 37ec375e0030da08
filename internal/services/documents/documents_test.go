package documents

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BearBump/SellerFlow/internal/models"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 100, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

type mapImages map[string][]byte

func (m mapImages) Fetch(ctx context.Context, rawURL string) ([]byte, bool) {
	b, ok := m[rawURL]
	return b, ok
}

func sampleRows(n int) []models.CombinedRow {
	rows := make([]models.CombinedRow, 0, n)
	for i := 0; i < n; i++ {
		nm := int64(1000 + i)
		rows = append(rows, models.CombinedRow{
			ShopID: 1, ShopName: "Магазин", SupplyID: "WB-GI-1", SupplyName: "FBS-1",
			OrderID: int64(500 + i), NmID: &nm,
			Sticker:  models.StickerFact{PartA: "1234", PartB: "5678"},
			Brand:    "Бренд",
			Title:    "Очень длинное наименование товара, которое не помещается в колонку таблицы",
			ImageURL: "https://img.example/big/1.webp",
			AgeGroup: "3+",
		})
	}
	return rows
}

var meta = models.DocumentMeta{
	Mode:        models.AggregationModeLatest,
	Lang:        "ru",
	GeneratedAt: time.Date(2025, 3, 7, 9, 5, 0, 0, time.UTC),
}

func TestRenderOrderList_Deterministic(t *testing.T) {
	imgs := mapImages{"https://img.example/big/1.webp": jpegBytes(t, 40, 60)}
	r := New(imgs, nil)
	supplies := []models.SupplySummary{{ShopID: 1, ShopName: "Магазин", SupplyID: "WB-GI-1", SupplyName: "FBS-1", RowCount: 3}}
	rows := sampleRows(3)

	a, err := r.RenderOrderList(context.Background(), meta, supplies, rows)
	require.NoError(t, err)
	b, err := r.RenderOrderList(context.Background(), meta, supplies, rows)
	require.NoError(t, err)

	require.True(t, bytes.HasPrefix(a, []byte("%PDF-")))
	require.Equal(t, a, b)
}

func TestBuildOrderList_PagesAndRepeatedHeader(t *testing.T) {
	r := New(nil, nil)
	d := r.buildOrderList(meta, nil, sampleRows(30), nil)
	require.True(t, d.pdf.Ok(), "%v", d.pdf.Error())
	// сводка + 12 + 12 + 6 строк
	require.Equal(t, 4, d.pdf.PageCount())

	empty := r.buildOrderList(meta, nil, nil, nil)
	require.True(t, empty.pdf.Ok())
	require.Equal(t, 1, empty.pdf.PageCount())
}

func TestRenderOrderList_BadImageFallsBackToPlaceholder(t *testing.T) {
	rows := sampleRows(2)
	rows[1].ImageURL = "https://img.example/broken.jpg"
	imgs := mapImages{
		"https://img.example/big/1.webp": []byte("definitely not an image"),
		"https://img.example/broken.jpg": {0xFF, 0xD8, 0xFF, 0x00},
	}

	out, err := New(imgs, nil).RenderOrderList(context.Background(), meta, nil, rows)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}

func TestRenderOrderList_PNGIsConverted(t *testing.T) {
	imgs := mapImages{"https://img.example/big/1.webp": pngBytes(t, 30, 30)}
	r := New(imgs, nil)

	got := r.prefetch(context.Background(), sampleRows(2))
	require.Len(t, got, 1)
	cfg, format, err := image.DecodeConfig(bytes.NewReader(got["https://img.example/big/1.webp"].data))
	require.NoError(t, err)
	require.Equal(t, "jpeg", format)
	require.Equal(t, 30, cfg.Width)

	_, err = r.RenderOrderList(context.Background(), meta, nil, sampleRows(2))
	require.NoError(t, err)
}

func TestBuildStickers_PagePerRow(t *testing.T) {
	rows := sampleRows(3)
	file := base64.StdEncoding.EncodeToString(pngBytes(t, 58, 40))
	bad := "%%%not-base64"
	rows[0].Sticker.File = &file
	rows[1].Sticker.File = &bad

	r := New(nil, nil)
	d := r.buildStickers(meta, rows)
	require.True(t, d.pdf.Ok(), "%v", d.pdf.Error())
	require.Equal(t, 3, d.pdf.PageCount())
	w, h := d.pdf.GetPageSize()
	require.InDelta(t, stickerW, w, 0.01)
	require.InDelta(t, stickerH, h, 0.01)

	empty := r.buildStickers(meta, nil)
	require.Equal(t, 1, empty.pdf.PageCount())

	a, err := r.RenderStickers(context.Background(), meta, rows)
	require.NoError(t, err)
	b, err := r.RenderStickers(context.Background(), meta, rows)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestWithFont_MissingFileKeepsCoreFont(t *testing.T) {
	r := New(nil, nil).WithFont("/nonexistent/font.ttf")
	require.Empty(t, r.font)

	d := r.buildStickers(meta, sampleRows(1))
	require.Equal(t, "Helvetica", d.family)
	require.True(t, d.pdf.Ok())
}

func TestWithFont_InvalidFontKeepsCoreFont(t *testing.T) {
	dir := t.TempDir()
	text := filepath.Join(dir, "font.ttf")
	require.NoError(t, os.WriteFile(text, []byte("this is not a font at all"), 0o600))
	// правильная сигнатура, но таблиц нет
	broken := filepath.Join(dir, "broken.ttf")
	require.NoError(t, os.WriteFile(broken, append([]byte{0, 1, 0, 0}, make([]byte, 60)...), 0o600))

	for _, path := range []string{text, broken} {
		r := New(nil, nil).WithFont(path)
		require.Empty(t, r.font, path)

		_, err := r.RenderStickers(context.Background(), meta, sampleRows(1))
		require.NoError(t, err)
		_, err = r.RenderOrderList(context.Background(), meta, nil, sampleRows(1))
		require.NoError(t, err)
	}
}

func TestEmbeddable(t *testing.T) {
	_, ok := embeddable(nil, 80)
	require.False(t, ok)
	_, ok = embeddable([]byte("garbage"), 80)
	require.False(t, ok)

	j := jpegBytes(t, 10, 20)
	img, ok := embeddable(j, 80)
	require.True(t, ok)
	require.Equal(t, j, img.data)
	require.Equal(t, 10, img.width)

	w, h := img.fitBox(18, 20)
	require.InDelta(t, 10.0, w, 0.001)
	require.InDelta(t, 20.0, h, 0.001)
}

func TestNormalizers(t *testing.T) {
	n := NewImagingNormalizer(100, 90)
	out, err := n.Normalize(pngBytes(t, 400, 200))
	require.NoError(t, err)
	cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	require.Equal(t, "jpeg", format)
	require.Equal(t, 100, cfg.Width)
	require.Equal(t, 50, cfg.Height)

	_, err = n.Normalize([]byte("nope"))
	require.Error(t, err)

	b, err := PassThrough{}.Normalize([]byte("raw"))
	require.NoError(t, err)
	require.Equal(t, []byte("raw"), b)
	_, err = PassThrough{}.Normalize(nil)
	require.Error(t, err)
}

func TestTranslit(t *testing.T) {
	require.Equal(t, "Shchuka i Yozh", translit("Щука и Йож"))
	require.Equal(t, "Pick list", translit("Pick list"))
	require.Equal(t, "Podem", translit("Подъем"))
}

func TestLabels(t *testing.T) {
	for k, pair := range labelText {
		require.NotEmpty(t, pair[0], k)
		require.NotEmpty(t, pair[1], k)
	}
	require.Equal(t, "Waiting orders", labelsFor("en-US").heading(models.AggregationModeWaiting))
	require.Equal(t, "Лист подбора", labelsFor("").heading(models.AggregationModeLatest))
	require.Equal(t, []string{"Shop", "Rows"}, labelsFor("EN").texts(lShop, lRows))
}

func TestImageCandidates(t *testing.T) {
	got := imageCandidates("https://basket-01.wb.ru/vol1/part1/1/images/big/1.webp")
	require.Equal(t, []string{
		"https://basket-01.wb.ru/vol1/part1/1/images/big/1.webp",
		"https://basket-01.wb.ru/vol1/part1/1/images/big/1.jpg",
		"https://basket-01.wb.ru/vol1/part1/1/images/c516x688/1.webp",
		"https://basket-01.wb.ru/vol1/part1/1/images/c516x688/1.jpg",
		"https://basket-01.wb.ru/vol1/part1/1/images/tm/1.webp",
		"https://basket-01.wb.ru/vol1/part1/1/images/tm/1.jpg",
	}, got)

	require.Equal(t, []string{"https://x/a.png"}, imageCandidates("https://x/a.png"))
	require.Equal(t, []string{"https://x/a.JPG?v=1", "https://x/a.webp?v=1"}, imageCandidates("https://x/a.JPG?v=1"))
	require.Nil(t, imageCandidates("  "))
}
