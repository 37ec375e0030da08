package documents

import (
	"context"
	"encoding/base64"
	"strconv"
	"strings"

	"github.com/BearBump/SellerFlow/internal/models"
	"github.com/go-pdf/fpdf"
)

// Размер термоэтикетки, мм.
const (
	stickerW = 58.0
	stickerH = 40.0
)

func (r *Renderer) RenderStickers(ctx context.Context, meta models.DocumentMeta, rows []models.CombinedRow) ([]byte, error) {
	return r.buildStickers(meta, rows).output()
}

func (r *Renderer) buildStickers(meta models.DocumentMeta, rows []models.CombinedRow) *doc {
	d := r.newDoc(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           fpdf.SizeType{Wd: stickerW, Ht: stickerH},
	}, meta)
	pdf := d.pdf
	pdf.SetMargins(1, 1, 1)

	if len(rows) == 0 {
		pdf.AddPage()
		d.font("", 10)
		pdf.SetXY(1, stickerH/2-4)
		pdf.CellFormat(stickerW-2, 8, d.tr(labelsFor(meta.Lang).text(lNoOrders)), "", 0, "CM", false, 0, "")
		return d
	}

	for i, row := range rows {
		pdf.AddPage()
		if img, ok := r.stickerImage(row.Sticker); ok {
			d.image("sticker-"+strconv.Itoa(i), img, 1, 1, stickerW-2, stickerH-2)
			continue
		}
		d.stickerText(row)
	}
	return d
}

func (r *Renderer) stickerImage(st models.StickerFact) (pdfImage, bool) {
	if st.File == nil || strings.TrimSpace(*st.File) == "" {
		return pdfImage{}, false
	}
	b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(*st.File))
	if err != nil {
		return pdfImage{}, false
	}
	return embeddable(b, r.jpegQuality)
}

// stickerText: запасной вариант, когда картинки стикера нет.
func (d *doc) stickerText(row models.CombinedRow) {
	pdf := d.pdf
	w := stickerW - 2

	d.font("", 9)
	pdf.SetXY(1, 4)
	pdf.CellFormat(w, 6, strconv.FormatInt(row.OrderID, 10), "", 0, "CM", false, 0, "")

	d.font("B", 20)
	pdf.SetXY(1, 12)
	pdf.CellFormat(w, 10, d.fit(row.Sticker.PartA, w), "", 0, "CM", false, 0, "")
	pdf.SetXY(1, 22)
	pdf.CellFormat(w, 10, d.fit(row.Sticker.PartB, w), "", 0, "CM", false, 0, "")

	d.font("", 6)
	pdf.SetXY(1, 33)
	pdf.CellFormat(w, 4, d.fit(row.SupplyID, w), "", 0, "CM", false, 0, "")
}
