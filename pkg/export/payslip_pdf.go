package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// PayslipLine is one payable job item row on the rendered document.
type PayslipLine struct {
	JobID       string
	Product     string
	QtyOrdered  int
	QtyAccepted int
	UnitRate    string
	Payment     string
}

// PayslipDocument carries everything needed to render a payslip PDF.
type PayslipDocument struct {
	ArtisanName  string
	Stage        string
	PeriodStart  string
	PeriodEnd    string
	Lines        []PayslipLine
	TotalPayment string
}

// PayslipRenderer renders payslip documents as PDF bytes.
type PayslipRenderer struct{}

// NewPayslipRenderer constructs a payslip renderer.
func NewPayslipRenderer() *PayslipRenderer {
	return &PayslipRenderer{}
}

var payslipColumns = []struct {
	title string
	width float64
}{
	{"Job", 25},
	{"Product", 60},
	{"Ordered", 25},
	{"Accepted", 25},
	{"Rate", 25},
	{"Payment", 30},
}

// Render produces the PDF for one artisan payslip.
func (r *PayslipRenderer) Render(doc PayslipDocument) ([]byte, error) {
	if len(doc.Lines) == 0 {
		return nil, fmt.Errorf("payslip requires at least one line")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 10, "ARTISAN PAYSLIP", "", 1, "C", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Arial", "", 11)
	pdf.CellFormat(0, 7, fmt.Sprintf("Artisan: %s", doc.ArtisanName), "", 1, "", false, 0, "")
	if doc.Stage != "" {
		pdf.CellFormat(0, 7, fmt.Sprintf("Stage: %s", doc.Stage), "", 1, "", false, 0, "")
	}
	pdf.CellFormat(0, 7, fmt.Sprintf("Period: %s to %s", doc.PeriodStart, doc.PeriodEnd), "", 1, "", false, 0, "")
	pdf.Ln(4)

	writeHeader := func() {
		pdf.SetFont("Arial", "B", 10)
		for _, col := range payslipColumns {
			pdf.CellFormat(col.width, 8, col.title, "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 9)
	}
	writeHeader()

	for _, line := range doc.Lines {
		// gofpdf auto-breaks pages; re-draw the table header after a break.
		if pdf.GetY() > 265 {
			pdf.AddPage()
			writeHeader()
		}
		cells := []string{
			line.JobID,
			line.Product,
			fmt.Sprintf("%d", line.QtyOrdered),
			fmt.Sprintf("%d", line.QtyAccepted),
			line.UnitRate,
			line.Payment,
		}
		for i, col := range payslipColumns {
			pdf.CellFormat(col.width, 7, cells[i], "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	pdf.Ln(4)
	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(0, 8, fmt.Sprintf("Total Payment: %s", doc.TotalPayment), "", 1, "R", false, 0, "")

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render payslip pdf: %w", err)
	}
	return buf.Bytes(), nil
}
