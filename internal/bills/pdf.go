package bills

import (
	"bytes"
	"context"
	"fmt"

	"github.com/odyssey-erp/stockbill/internal/view"
)

const printTemplate = "pages/bill_print.html"

// PDFClient exposes the subset of the report client used by the renderer.
type PDFClient interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// Renderer turns a bill into a PDF through the HTML print template.
type Renderer struct {
	templates *view.Engine
	client    PDFClient
}

// NewRenderer wires the template engine and the PDF client.
func NewRenderer(templates *view.Engine, client PDFClient) (*Renderer, error) {
	if templates == nil || client == nil {
		return nil, fmt.Errorf("bills renderer: templates and pdf client required")
	}
	return &Renderer{templates: templates, client: client}, nil
}

// Render executes the print template and converts the HTML to PDF bytes.
func (r *Renderer) Render(ctx context.Context, bill Bill) ([]byte, error) {
	buf := &bytes.Buffer{}
	data := view.TemplateData{Title: "Bill", Dataset: bill.Dataset, Data: bill}
	if err := r.templates.Execute(buf, printTemplate, data); err != nil {
		return nil, fmt.Errorf("bills: render html: %w", err)
	}
	pdf, err := r.client.RenderHTML(ctx, buf.String())
	if err != nil {
		return nil, fmt.Errorf("bills: render pdf: %w", err)
	}
	return pdf, nil
}
