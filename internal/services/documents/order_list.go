package documents

import (
	"context"
	"strconv"

	"github.com/BearBump/SellerFlow/internal/models"
	"github.com/go-pdf/fpdf"
)

const (
	margin = 10.0

	colOrder   = 25.0
	colImage   = 20.0
	colBrand   = 30.0
	colTitle   = 62.0
	colAge     = 15.0
	colNmID    = 20.0
	colSticker = 18.0

	headerH = 8.0
	rowH    = 22.0
	lineH   = 7.0
)

func (r *Renderer) RenderOrderList(ctx context.Context, meta models.DocumentMeta, supplies []models.SupplySummary, rows []models.CombinedRow) ([]byte, error) {
	images := r.prefetch(ctx, rows)
	return r.buildOrderList(meta, supplies, rows, images).output()
}

func (r *Renderer) buildOrderList(meta models.DocumentMeta, supplies []models.SupplySummary, rows []models.CombinedRow, images map[string]pdfImage) *doc {
	d := r.newDoc(&fpdf.InitType{OrientationStr: "P", UnitStr: "mm", SizeStr: "A4"}, meta)
	pdf := d.pdf
	pdf.SetMargins(margin, margin, margin)
	_, pageH := pdf.GetPageSize()
	bottom := pageH - margin
	l := labelsFor(meta.Lang)

	// Сводная страница
	pdf.AddPage()
	d.font("B", 14)
	pdf.CellFormat(0, 10, d.tr(l.heading(meta.Mode)), "", 1, "L", false, 0, "")
	d.font("", 10)
	pdf.CellFormat(0, lineH, d.tr(l.text(lGenerated)+": "+meta.GeneratedAt.Format("02.01.2006 15:04")), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, lineH, d.tr(l.text(lOrders)+": "+strconv.Itoa(len(rows))), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, lineH, d.tr(l.text(lSupplies)+": "+strconv.Itoa(len(supplies))), "", 1, "L", false, 0, "")
	pdf.Ln(3)

	supplyCols := []float64{60, 50, 50, 30}
	supplyHeader := func() {
		d.font("B", 9)
		pdf.SetFillColor(230, 230, 230)
		for i, h := range l.texts(lShop, lSupply, lSupplyName, lRows) {
			pdf.CellFormat(supplyCols[i], lineH, d.fit(h, supplyCols[i]), "1", 0, "L", true, 0, "")
		}
		pdf.Ln(lineH)
		d.font("", 9)
	}
	supplyHeader()
	for _, s := range supplies {
		if pdf.GetY()+lineH > bottom {
			pdf.AddPage()
			supplyHeader()
		}
		pdf.CellFormat(supplyCols[0], lineH, d.fit(s.ShopName, supplyCols[0]), "1", 0, "L", false, 0, "")
		pdf.CellFormat(supplyCols[1], lineH, d.fit(s.SupplyID, supplyCols[1]), "1", 0, "L", false, 0, "")
		pdf.CellFormat(supplyCols[2], lineH, d.fit(s.SupplyName, supplyCols[2]), "1", 0, "L", false, 0, "")
		pdf.CellFormat(supplyCols[3], lineH, strconv.Itoa(s.RowCount), "1", 0, "R", false, 0, "")
		pdf.Ln(lineH)
	}
	if len(rows) == 0 {
		pdf.Ln(lineH)
		d.font("", 10)
		pdf.CellFormat(0, lineH, d.tr(l.text(lNoOrders)), "", 1, "L", false, 0, "")
		return d
	}

	// Таблица заказов, шапка повторяется на каждой странице
	cols := []float64{colOrder, colImage, colBrand, colTitle, colAge, colNmID, colSticker}
	tableHeader := func() {
		d.font("B", 8)
		pdf.SetFillColor(230, 230, 230)
		for i, h := range l.texts(lOrderID, lPhoto, lBrand, lTitle, lAge, lNmID, lSticker) {
			pdf.CellFormat(cols[i], headerH, d.fit(h, cols[i]), "1", 0, "CM", true, 0, "")
		}
		pdf.Ln(headerH)
		d.font("", 8)
	}
	pdf.AddPage()
	tableHeader()

	for _, row := range rows {
		if pdf.GetY()+rowH > bottom {
			pdf.AddPage()
			tableHeader()
		}
		y := pdf.GetY()

		pdf.CellFormat(colOrder, rowH, strconv.FormatInt(row.OrderID, 10), "1", 0, "LM", false, 0, "")

		x := pdf.GetX()
		pdf.CellFormat(colImage, rowH, "", "1", 0, "", false, 0, "")
		if img, ok := images[row.ImageURL]; ok {
			d.image("card-"+digest(row.ImageURL), img, x+1, y+1, colImage-2, rowH-2)
		} else {
			d.placeholder(x, y, colImage, rowH)
		}

		nm := "-"
		if row.NmID != nil {
			nm = strconv.FormatInt(*row.NmID, 10)
		}
		pdf.CellFormat(colBrand, rowH, d.fit(row.Brand, colBrand), "1", 0, "LM", false, 0, "")
		pdf.CellFormat(colTitle, rowH, d.fit(row.Title, colTitle), "1", 0, "LM", false, 0, "")
		pdf.CellFormat(colAge, rowH, d.fit(row.AgeGroup, colAge), "1", 0, "CM", false, 0, "")
		pdf.CellFormat(colNmID, rowH, nm, "1", 0, "CM", false, 0, "")
		pdf.CellFormat(colSticker, rowH, d.fit(row.Sticker.StickerCode(), colSticker), "1", 0, "CM", false, 0, "")
		pdf.Ln(rowH)
	}
	return d
}

// placeholder: серый квадрат с крестом вместо картинки.
func (d *doc) placeholder(x, y, w, h float64) {
	pdf := d.pdf
	side := h - 8
	if w-8 < side {
		side = w - 8
	}
	px, py := x+(w-side)/2, y+(h-side)/2
	pdf.SetDrawColor(180, 180, 180)
	pdf.Rect(px, py, side, side, "D")
	pdf.Line(px, py, px+side, py+side)
	pdf.Line(px, py+side, px+side, py)
	pdf.SetDrawColor(0, 0, 0)
}
