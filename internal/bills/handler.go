package bills

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/stockbill/internal/platform/httpx"
	"github.com/odyssey-erp/stockbill/internal/shared"
	"github.com/odyssey-erp/stockbill/internal/stock"
	"github.com/odyssey-erp/stockbill/internal/view"
)

// Handler serves bill pages and exports.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	templates      *view.Engine
	csrf           *shared.CSRFManager
	renderer       *Renderer
	defaultDataset string
}

// NewHandler constructs Handler. renderer may be nil when PDF output is unavailable.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, renderer *Renderer, defaultDataset string) *Handler {
	return &Handler{
		logger:         logger,
		service:        service,
		templates:      templates,
		csrf:           csrf,
		renderer:       renderer,
		defaultDataset: defaultDataset,
	}
}

// MountRoutes registers bill routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/bills", func(r chi.Router) {
		r.Get("/", h.showAll)
		r.Get("/export.csv", h.exportCSV)
		r.Get("/{sno}", h.showSingle)
		r.Get("/{sno}/pdf", h.downloadPDF)
	})
}

func (h *Handler) showAll(w http.ResponseWriter, r *http.Request) {
	dataset := stock.DatasetFromRequest(r, h.defaultDataset)
	bill, err := h.service.All(r.Context(), dataset)
	if err != nil {
		h.fail(w, r, dataset, err)
		return
	}
	h.render(w, r, "pages/bill_all.html", "Bill", bill)
}

func (h *Handler) showSingle(w http.ResponseWriter, r *http.Request) {
	dataset := stock.DatasetFromRequest(r, h.defaultDataset)
	bill, ok := h.single(w, r, dataset)
	if !ok {
		return
	}
	h.render(w, r, "pages/bill_single.html", "Bill", bill)
}

func (h *Handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	dataset := stock.DatasetFromRequest(r, h.defaultDataset)
	bill, err := h.service.All(r.Context(), dataset)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", dataset+"-bill.csv"))
	if err := WriteCSV(w, bill); err != nil {
		h.logger.Error("write bill csv", slog.String("dataset", dataset), slog.Any("error", err))
	}
}

func (h *Handler) downloadPDF(w http.ResponseWriter, r *http.Request) {
	dataset := stock.DatasetFromRequest(r, h.defaultDataset)
	if h.renderer == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "PDF unavailable", "no PDF renderer configured")
		return
	}
	bill, ok := h.single(w, r, dataset)
	if !ok {
		return
	}
	pdf, err := h.renderer.Render(r.Context(), bill)
	if err != nil {
		h.logger.Error("render bill pdf", slog.String("dataset", dataset), slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "PDF rendering failed", "")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("%s-%d.pdf", dataset, bill.Lines[0].Item.SNo)))
	_, _ = w.Write(pdf)
}

// single loads a one-item bill or redirects back to the item list.
func (h *Handler) single(w http.ResponseWriter, r *http.Request, dataset string) (Bill, bool) {
	sno, err := strconv.ParseInt(chi.URLParam(r, "sno"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return Bill{}, false
	}
	bill, err := h.service.Single(r.Context(), dataset, sno)
	switch {
	case err == nil:
		return bill, true
	case errors.Is(err, stock.ErrItemNotFound):
		shared.Flash(r.Context(), "warning", "Item not found")
		http.Redirect(w, r, stock.ItemsURL(dataset), http.StatusSeeOther)
	default:
		h.fail(w, r, dataset, err)
	}
	return Bill{}, false
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, name, title string, bill Bill) {
	data := view.NewTemplateData(r, h.csrf, title, bill.Dataset, bill)
	if err := h.templates.Render(w, name, data); err != nil {
		h.logger.Error("render template", slog.String("template", name), slog.Any("error", err))
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, dataset string, err error) {
	status := httpx.StatusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("bill request failed", slog.String("dataset", dataset), slog.Any("error", err))
	}
	data := view.NewTemplateData(r, h.csrf, "Error", dataset, nil)
	data.Flash = &shared.FlashMessage{Kind: "danger", Message: shared.UserSafeMessage(err)}
	if rerr := h.templates.RenderStatus(w, status, "pages/error.html", data); rerr != nil {
		h.logger.Error("render template", slog.String("template", "pages/error.html"), slog.Any("error", rerr))
	}
}
