package report

import (
	"fmt"
	"io"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/therealutkarshpriyadarshi/tooldetect/pkg/models"
)

const (
	pdfRowHeight = 7.0
	pdfDateWidth = 45.0
)

// WritePDF writes rows as a landscape A4 table
func WritePDF(w io.Writer, rows []*models.Detection, generatedAt time.Time) error {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetTitle("Tool detections", false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 14)
	pdf.Cell(0, 10, "Tool detections")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 9)
	pdf.Cell(0, 6, fmt.Sprintf("Generated %s, %d rows", generatedAt.UTC().Format(time.RFC1123), len(rows)))
	pdf.Ln(10)

	header := Header()
	pageWidth, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	colWidth := (pageWidth - left - right - pdfDateWidth) / float64(len(header)-1)
	width := func(i int) float64 {
		if i == len(header)-1 {
			return pdfDateWidth
		}
		return colWidth
	}

	drawHeader := func() {
		pdf.SetFont("Helvetica", "B", 8)
		pdf.SetFillColor(220, 220, 220)
		for i, h := range header {
			pdf.CellFormat(width(i), pdfRowHeight, h, "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 8)
	}
	drawHeader()

	_, pageHeight := pdf.GetPageSize()
	_, _, _, bottom := pdf.GetMargins()
	for _, d := range rows {
		if pdf.GetY()+pdfRowHeight > pageHeight-bottom {
			pdf.AddPage()
			drawHeader()
		}
		for i, cell := range row(d) {
			pdf.CellFormat(width(i), pdfRowHeight, cell, "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to render pdf: %w", err)
	}
	return nil
}
