// internal/pkg/pdf/service.go
package pdf

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/SebastiaanKlippert/go-wkhtmltopdf"
	"github.com/your-org/inventory-ledger/internal/config"
	"github.com/your-org/inventory-ledger/internal/domain/allocation"
)

// Service renders receipt provenance reports
type Service struct {
	config   *config.Config
	template *template.Template
	now      func() time.Time
}

// NewService creates a new PDF service
func NewService(cfg *config.Config) *Service {
	if cfg.Report.WkhtmltopdfPath != "" {
		wkhtmltopdf.SetPath(cfg.Report.WkhtmltopdfPath)
	}

	tmpl := template.Must(template.New("trace").Funcs(template.FuncMap{
		"short": func(hash string) string {
			if len(hash) <= 12 {
				return hash
			}
			return hash[:12]
		},
		"date": func(t time.Time) string {
			return t.UTC().Format("January 2, 2006 15:04 MST")
		},
	}).Parse(traceTemplate))

	return &Service{
		config:   cfg,
		template: tmpl,
		now:      time.Now,
	}
}

// ReportData represents the data passed to the trace template
type ReportData struct {
	GeneratedAt string                  `json:"generated_at"`
	Company     CompanyInfo             `json:"company"`
	Trace       *allocation.TraceResult `json:"trace"`
}

// CompanyInfo represents company information
type CompanyInfo struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// GenerateTraceReport renders a receipt trace as a PDF
func (s *Service) GenerateTraceReport(trace *allocation.TraceResult) (*bytes.Buffer, error) {
	htmlContent, err := s.RenderTraceHTML(trace)
	if err != nil {
		return nil, err
	}

	// Convert HTML to PDF
	pdfg, err := wkhtmltopdf.NewPDFGenerator()
	if err != nil {
		return nil, fmt.Errorf("failed to create PDF generator: %w", err)
	}

	// Set PDF options
	pdfg.Dpi.Set(300)
	pdfg.Orientation.Set(wkhtmltopdf.OrientationLandscape)
	pdfg.Grayscale.Set(false)
	pdfg.Title.Set(fmt.Sprintf("Provenance %s", trace.ReceiptID))

	page := wkhtmltopdf.NewPageReader(bytes.NewReader([]byte(htmlContent)))
	page.FooterRight.Set("[page]")
	page.FooterFontSize.Set(9)
	page.Zoom.Set(0.95)

	pdfg.AddPage(page)

	if err := pdfg.Create(); err != nil {
		return nil, fmt.Errorf("failed to create PDF: %w", err)
	}

	return bytes.NewBuffer(pdfg.Bytes()), nil
}

// RenderTraceHTML renders the HTML page that becomes the PDF
func (s *Service) RenderTraceHTML(trace *allocation.TraceResult) (string, error) {
	data := ReportData{
		GeneratedAt: s.now().UTC().Format(time.RFC3339),
		Company: CompanyInfo{
			Name:    s.config.Report.CompanyName,
			Address: s.config.Report.CompanyAddress,
		},
		Trace: trace,
	}

	var buf bytes.Buffer
	if err := s.template.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}

// Trace HTML template
const traceTemplate = `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Provenance {{.Trace.ReceiptID}}</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 0; padding: 20px; color: #333; }
        .header { display: flex; justify-content: space-between; border-bottom: 2px solid #eee; padding-bottom: 16px; margin-bottom: 24px; }
        .title { font-size: 24px; font-weight: bold; color: #2563eb; }
        .lot { margin-bottom: 28px; }
        .lot-info td { padding: 3px 12px 3px 0; }
        .lot-info .label { font-weight: bold; }
        .events { width: 100%; border-collapse: collapse; margin-top: 10px; }
        .events th, .events td { border: 1px solid #ddd; padding: 6px; text-align: left; font-size: 12px; }
        .events th { background-color: #f8f9fa; }
        .hash { font-family: monospace; }
        .footer { margin-top: 40px; border-top: 1px solid #eee; padding-top: 12px; text-align: center; color: #666; font-size: 11px; }
    </style>
</head>
<body>
    <div class="header">
        <div>
            <h1>{{.Company.Name}}</h1>
            {{if .Company.Address}}<p>{{.Company.Address}}</p>{{end}}
        </div>
        <div>
            <div class="title">STOCK PROVENANCE</div>
            <p><strong>Receipt:</strong> {{.Trace.ReceiptID}}</p>
            <p><strong>Generated:</strong> {{.GeneratedAt}}</p>
        </div>
    </div>

    {{range .Trace.Lines}}
    <div class="lot">
        <table class="lot-info">
            <tr><td class="label">Lot</td><td>{{.Lot.LotNumber}}</td><td class="label">Quantity sold</td><td>{{.Quantity}}</td></tr>
            <tr><td class="label">Goods receipt</td><td>{{.Lot.GRNID}}</td><td class="label">Received</td><td>{{date .Lot.ReceivedAt}}</td></tr>
            <tr><td class="label">Supplier</td><td>{{with .Lot.SupplierID}}{{.}}{{else}}-{{end}}</td><td class="label">Supplier invoice</td><td>{{with .Lot.SupplierInvoiceRef}}{{.}}{{else}}-{{end}}</td></tr>
            <tr><td class="label">Unit cost</td><td>{{.Lot.UnitCost.StringFixed 4}} {{.Lot.Currency}}</td><td class="label">Barcode</td><td>{{with .Lot.Barcode}}{{.}}{{else}}-{{end}}</td></tr>
        </table>
        <table class="events">
            <thead>
                <tr><th>Seq</th><th>Event</th><th>Qty</th><th>Reference</th><th>Actor</th><th>Recorded</th><th>Hash</th><th>Previous</th></tr>
            </thead>
            <tbody>
                {{range .Entries}}
                <tr>
                    <td>{{.SequenceNumber}}</td>
                    <td>{{.EventType}}</td>
                    <td>{{.Quantity}}</td>
                    <td>{{.ReferenceType}}/{{.ReferenceID}}</td>
                    <td>{{.ActorID}}</td>
                    <td>{{date .CreatedAt}}</td>
                    <td class="hash">{{short .EventHash}}</td>
                    <td class="hash">{{with .PrevEventHash}}{{short .}}{{else}}-{{end}}</td>
                </tr>
                {{end}}
            </tbody>
        </table>
    </div>
    {{end}}

    <div class="footer">
        <p>Every entry above was recomputed from the hash chain when this report was generated.</p>
    </div>
</body>
</html>
`
