// Package render produces documents from frozen invoices.
package render

import (
	"fmt"
	"io"
	"regdesk/internal/model"

	"github.com/phpdave11/gofpdf"
	"github.com/shopspring/decimal"
)

const dateLayout = "2 Jan 2006 15:04 MST"

// InvoicePDF writes inv and the payments made against it as an A4 PDF.
func InvoicePDF(w io.Writer, inv *model.Invoice, payments []*model.Payment) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("Invoice #%d", inv.ID), true)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(0, 10, fmt.Sprintf("Invoice #%d", inv.ID))
	pdf.Ln(12)

	pdf.SetFont("Arial", "", 11)
	pdf.Cell(0, 6, "Recipient: "+inv.Recipient)
	pdf.Ln(6)
	pdf.Cell(0, 6, "Status: "+string(inv.Status))
	pdf.Ln(6)
	pdf.Cell(0, 6, "Issued: "+inv.IssueTime.Format(dateLayout))
	pdf.Ln(6)
	pdf.Cell(0, 6, "Due: "+inv.DueTime.Format(dateLayout))
	pdf.Ln(10)

	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(110, 7, "Description", "B", 0, "L", false, 0, "")
	pdf.CellFormat(20, 7, "Qty", "B", 0, "R", false, 0, "")
	pdf.CellFormat(30, 7, "Price", "B", 0, "R", false, 0, "")
	pdf.CellFormat(30, 7, "Total", "B", 1, "R", false, 0, "")

	pdf.SetFont("Arial", "", 11)
	for i := range inv.LineItems {
		line := &inv.LineItems[i]
		pdf.CellFormat(110, 7, line.Description, "", 0, "L", false, 0, "")
		pdf.CellFormat(20, 7, fmt.Sprint(line.Quantity), "", 0, "R", false, 0, "")
		pdf.CellFormat(30, 7, money(line.Price), "", 0, "R", false, 0, "")
		pdf.CellFormat(30, 7, money(line.Total()), "", 1, "R", false, 0, "")
	}

	paid := decimal.Zero
	for _, p := range payments {
		paid = paid.Add(p.Amount)
	}

	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(160, 7, "Invoice total", "T", 0, "R", false, 0, "")
	pdf.CellFormat(30, 7, money(inv.Value), "T", 1, "R", false, 0, "")
	pdf.CellFormat(160, 7, "Paid", "", 0, "R", false, 0, "")
	pdf.CellFormat(30, 7, money(paid), "", 1, "R", false, 0, "")
	pdf.CellFormat(160, 7, "Balance due", "", 0, "R", false, 0, "")
	pdf.CellFormat(30, 7, money(inv.Value.Sub(paid)), "", 1, "R", false, 0, "")

	if len(payments) > 0 {
		pdf.Ln(8)
		pdf.Cell(0, 7, "Payments")
		pdf.Ln(7)
		pdf.SetFont("Arial", "", 10)
		for _, p := range payments {
			pdf.CellFormat(50, 6, p.Time.Format(dateLayout), "", 0, "L", false, 0, "")
			pdf.CellFormat(110, 6, p.Reference, "", 0, "L", false, 0, "")
			pdf.CellFormat(30, 6, money(p.Amount), "", 1, "R", false, 0, "")
		}
	}

	return pdf.Output(w)
}

func money(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}
