// Package reporting exports an end-of-run survey summary as PDF, grounded
// on the teacher's internal/adapters/reporting PDFExporter (same gofpdf
// layout primitives: colored header band, stat grid, ranked table,
// footer) adapted from a vulnerability executive summary to a wireless
// survey summary. This is a supplemented feature (SPEC_FULL.md
// "Supplemented features"): the reference tool never produced a report,
// it only logged.
package reporting

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/braylonh/kismet/internal/core/domain"
)

// Summary is the data a run report is built from.
type Summary struct {
	Interface      string
	StartedAt      time.Time
	EndedAt        time.Time
	Networks       []*domain.Network
	PacketsTotal   int
	DroppedTotal   int
	GeneratedBy    string
}

// PDFExporter renders a Summary to PDF bytes.
type PDFExporter struct{}

func NewPDFExporter() *PDFExporter { return &PDFExporter{} }

// Export renders the full report.
func (e *PDFExporter) Export(s *Summary) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	e.addHeader(pdf, s)
	e.addStatBand(pdf, s)
	e.addNetworkTable(pdf, s)
	e.addFooter(pdf, s)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("reporting: generate pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *PDFExporter) addHeader(pdf *gofpdf.Fpdf, s *Summary) {
	pdf.SetFont("Arial", "B", 24)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 15, "Wireless Survey Summary", "", 1, "L", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Arial", "", 14)
	pdf.SetTextColor(100, 100, 100)
	pdf.CellFormat(0, 8, "Interface: "+s.Interface, "", 1, "L", false, 0, "")

	pdf.SetFont("Arial", "", 10)
	pdf.SetTextColor(120, 120, 120)
	periodStr := fmt.Sprintf("Captured: %s to %s",
		s.StartedAt.Format("2006-01-02 15:04"), s.EndedAt.Format("2006-01-02 15:04"))
	pdf.CellFormat(0, 6, periodStr, "", 1, "L", false, 0, "")
	pdf.Ln(8)
}

func (e *PDFExporter) addStatBand(pdf *gofpdf.Fpdf, s *Summary) {
	pdf.SetFillColor(0, 102, 204)
	pdf.Rect(20, pdf.GetY(), 170, 20, "F")
	y := pdf.GetY()

	pdf.SetFont("Arial", "B", 20)
	pdf.SetTextColor(255, 255, 255)
	pdf.SetXY(25, y+4)
	pdf.CellFormat(80, 12, fmt.Sprintf("%d networks", len(s.Networks)), "", 0, "L", false, 0, "")

	pdf.SetFont("Arial", "", 12)
	pdf.SetXY(110, y+6)
	pdf.CellFormat(80, 10, fmt.Sprintf("%d packets, %d dropped", s.PacketsTotal, s.DroppedTotal), "", 0, "L", false, 0, "")

	pdf.SetY(y + 25)
	pdf.Ln(5)
}

func (e *PDFExporter) addNetworkTable(pdf *gofpdf.Fpdf, s *Summary) {
	pdf.SetFont("Arial", "B", 14)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 10, "Networks Observed", "", 1, "L", false, 0, "")
	pdf.Ln(2)

	if len(s.Networks) == 0 {
		pdf.SetFont("Arial", "I", 10)
		pdf.SetTextColor(100, 100, 100)
		pdf.CellFormat(0, 7, "No networks observed", "", 1, "L", false, 0, "")
		return
	}

	sorted := make([]*domain.Network, len(s.Networks))
	copy(sorted, s.Networks)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].DataPackets > sorted[j].DataPackets
	})

	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Arial", "B", 10)
	pdf.SetTextColor(60, 60, 60)
	pdf.CellFormat(45, 8, "BSSID", "1", 0, "L", true, 0, "")
	pdf.CellFormat(45, 8, "SSID", "1", 0, "L", true, 0, "")
	pdf.CellFormat(20, 8, "Ch", "1", 0, "C", true, 0, "")
	pdf.CellFormat(15, 8, "WEP", "1", 0, "C", true, 0, "")
	pdf.CellFormat(25, 8, "Clients", "1", 0, "C", true, 0, "")
	pdf.CellFormat(20, 8, "Data", "1", 1, "C", true, 0, "")

	pdf.SetFont("Arial", "", 9)
	for i, n := range sorted {
		if i >= 50 {
			break
		}
		if pdf.GetY() > 260 {
			pdf.AddPage()
		}
		pdf.SetTextColor(60, 60, 60)
		pdf.CellFormat(45, 7, n.BSSID, "1", 0, "L", false, 0, "")

		ssid := n.SSID
		if len(ssid) > 25 {
			ssid = ssid[:22] + "..."
		}
		pdf.CellFormat(45, 7, ssid, "1", 0, "L", false, 0, "")
		pdf.CellFormat(20, 7, fmt.Sprintf("%d", n.Channel), "1", 0, "C", false, 0, "")

		if n.WEP {
			pdf.SetTextColor(220, 53, 69)
			pdf.CellFormat(15, 7, "yes", "1", 0, "C", false, 0, "")
		} else {
			pdf.SetTextColor(52, 199, 89)
			pdf.CellFormat(15, 7, "no", "1", 0, "C", false, 0, "")
		}

		pdf.SetTextColor(60, 60, 60)
		pdf.CellFormat(25, 7, fmt.Sprintf("%d", len(n.Clients)), "1", 0, "C", false, 0, "")
		pdf.CellFormat(20, 7, fmt.Sprintf("%d", n.DataPackets), "1", 1, "C", false, 0, "")
	}
	pdf.Ln(8)
}

func (e *PDFExporter) addFooter(pdf *gofpdf.Fpdf, s *Summary) {
	pdf.SetY(-20)
	pdf.SetDrawColor(200, 200, 200)
	pdf.Line(20, pdf.GetY(), 190, pdf.GetY())
	pdf.Ln(3)

	pdf.SetFont("Arial", "I", 8)
	pdf.SetTextColor(120, 120, 120)
	by := s.GeneratedBy
	if by == "" {
		by = "kismetd"
	}
	pdf.CellFormat(0, 5, "Generated by "+by, "", 1, "C", false, 0, "")
}
