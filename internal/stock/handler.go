package stock

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/stockbill/internal/platform/httpx"
	"github.com/odyssey-erp/stockbill/internal/shared"
	"github.com/odyssey-erp/stockbill/internal/view"
)

const dateLayout = "2006-01-02"

// Handler wires HTTP endpoints for items and sales.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	templates      *view.Engine
	csrf           *shared.CSRFManager
	defaultDataset string
	pageSize       int
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, defaultDataset string, pageSize int) *Handler {
	if pageSize < 1 {
		pageSize = 10
	}
	return &Handler{
		logger:         logger,
		service:        service,
		templates:      templates,
		csrf:           csrf,
		defaultDataset: defaultDataset,
		pageSize:       pageSize,
	}
}

// MountRoutes registers item and sale routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/items", func(r chi.Router) {
		r.Get("/", h.listItems)
		r.Get("/new", h.showNewItem)
		r.Post("/new", h.createItem)
		r.Get("/{sno}/edit", h.showEditItem)
		r.Post("/{sno}/edit", h.updateItem)
		r.Post("/{sno}/delete", h.deleteItem)
	})
	r.Get("/sell", h.showSell)
	r.Post("/sell", h.sell)
}

// DatasetFromRequest picks the dataset from ?table=, then the session, then fallback.
func DatasetFromRequest(r *http.Request, fallback string) string {
	if name := strings.TrimSpace(r.URL.Query().Get("table")); name != "" {
		return name
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil && sess.Dataset() != "" {
		return sess.Dataset()
	}
	return fallback
}

// ItemsURL is the listing location for dataset.
func ItemsURL(dataset string) string {
	return "/items?" + url.Values{"table": {dataset}}.Encode()
}

type listPageData struct {
	Page       Page
	SortFields []string
}

type itemFormData struct {
	Item   Item
	Date   string
	Action string
	IsEdit bool
	Errors map[string]string
}

type sellForm struct {
	ItemName     string
	NameOfDealer string
	Quantity     string
}

type sellPageData struct {
	Form    sellForm
	Receipt *Receipt
}

func (h *Handler) dataset(r *http.Request) string {
	return DatasetFromRequest(r, h.defaultDataset)
}

// remember stores a dataset that has just been used successfully.
func remember(r *http.Request, dataset string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.SetDataset(dataset)
	}
}

func (h *Handler) templateData(r *http.Request, title, dataset string, data any) view.TemplateData {
	return view.NewTemplateData(r, h.csrf, title, dataset, data)
}

func (h *Handler) render(w http.ResponseWriter, status int, name string, data view.TemplateData) {
	if err := h.templates.RenderStatus(w, status, name, data); err != nil {
		h.logger.Error("render template", slog.String("template", name), slog.Any("error", err))
	}
}

// fail renders an error for requests that cannot show their page at all.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, dataset string, err error) {
	status := httpx.StatusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("stock request failed", slog.String("dataset", dataset), slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	data := h.templateData(r, "Error", dataset, nil)
	data.Flash = &shared.FlashMessage{Kind: "danger", Message: shared.UserSafeMessage(err)}
	h.render(w, status, "pages/error.html", data)
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	dataset := h.dataset(r)
	q := r.URL.Query()
	query := ListQuery{
		Search:    strings.TrimSpace(q.Get("q")),
		SortField: q.Get("sort"),
		SortDir:   q.Get("dir"),
		Page:      atoiDefault(q.Get("page"), 1),
		PageSize:  atoiDefault(q.Get("per"), h.pageSize),
	}
	page, err := h.service.ListPage(r.Context(), dataset, query)
	if err != nil {
		h.fail(w, r, dataset, err)
		return
	}
	remember(r, dataset)
	h.render(w, http.StatusOK, "pages/items_list.html", h.templateData(r, "Items", dataset, listPageData{Page: page, SortFields: SortFields}))
}

func (h *Handler) showNewItem(w http.ResponseWriter, r *http.Request) {
	dataset := h.dataset(r)
	suggested, err := h.service.NextSno(r.Context(), dataset)
	if err != nil {
		h.fail(w, r, dataset, err)
		return
	}
	data := itemFormData{Item: Item{SNo: suggested}, Action: "/items/new", Errors: map[string]string{}}
	h.render(w, http.StatusOK, "pages/item_form.html", h.templateData(r, "New item", dataset, data))
}

func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	dataset := h.dataset(r)
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	item, errs := parseItemForm(r.PostForm, Item{})
	data := itemFormData{Item: item, Date: r.PostFormValue("DateOfPurchase"), Action: "/items/new", Errors: errs}
	if len(errs) > 0 {
		h.render(w, http.StatusBadRequest, "pages/item_form.html", h.templateData(r, "New item", dataset, data))
		return
	}
	created, err := h.service.Create(r.Context(), dataset, item)
	if err != nil {
		h.formError(w, r, dataset, "New item", data, "Could not add item", err)
		return
	}
	h.logger.Info("item created", slog.String("dataset", dataset), slog.Int64("sno", created.SNo))
	remember(r, dataset)
	shared.Flash(r.Context(), "success", "Item added successfully")
	http.Redirect(w, r, ItemsURL(dataset), http.StatusSeeOther)
}

func (h *Handler) showEditItem(w http.ResponseWriter, r *http.Request) {
	dataset := h.dataset(r)
	existing, ok := h.loadForEdit(w, r, dataset)
	if !ok {
		return
	}
	data := itemFormData{
		Item:   existing,
		Date:   view.FormatDate(existing.DateOfPurchase),
		Action: editAction(existing.SNo),
		IsEdit: true,
		Errors: map[string]string{},
	}
	h.render(w, http.StatusOK, "pages/item_form.html", h.templateData(r, "Edit item", dataset, data))
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	dataset := h.dataset(r)
	existing, ok := h.loadForEdit(w, r, dataset)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	item, errs := parseItemForm(r.PostForm, existing)
	item.SNo = existing.SNo
	data := itemFormData{Item: item, Date: view.FormatDate(item.DateOfPurchase), Action: editAction(existing.SNo), IsEdit: true, Errors: errs}
	if len(errs) > 0 {
		h.render(w, http.StatusBadRequest, "pages/item_form.html", h.templateData(r, "Edit item", dataset, data))
		return
	}
	if _, err := h.service.Update(r.Context(), dataset, existing.SNo, item); err != nil {
		h.formError(w, r, dataset, "Edit item", data, "Could not update item", err)
		return
	}
	shared.Flash(r.Context(), "success", "Item updated")
	http.Redirect(w, r, ItemsURL(dataset), http.StatusSeeOther)
}

func (h *Handler) deleteItem(w http.ResponseWriter, r *http.Request) {
	dataset := h.dataset(r)
	sno, err := strconv.ParseInt(chi.URLParam(r, "sno"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}
	if err := h.service.Delete(r.Context(), dataset, sno); err != nil {
		if errors.Is(err, ErrInvalidIdentifier) {
			h.fail(w, r, dataset, err)
			return
		}
		h.logger.Error("delete item", slog.String("dataset", dataset), slog.Int64("sno", sno), slog.Any("error", err))
		shared.Flash(r.Context(), "danger", "Could not delete: "+shared.UserSafeMessage(err))
		http.Redirect(w, r, ItemsURL(dataset), http.StatusSeeOther)
		return
	}
	shared.Flash(r.Context(), "success", "Item deleted")
	http.Redirect(w, r, ItemsURL(dataset), http.StatusSeeOther)
}

// loadForEdit fetches the item named in the URL or redirects back to the list.
func (h *Handler) loadForEdit(w http.ResponseWriter, r *http.Request, dataset string) (Item, bool) {
	sno, err := strconv.ParseInt(chi.URLParam(r, "sno"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return Item{}, false
	}
	existing, err := h.service.GetBySno(r.Context(), dataset, sno)
	switch {
	case err == nil:
		return existing, true
	case errors.Is(err, ErrItemNotFound):
		shared.Flash(r.Context(), "warning", "Item not found")
		http.Redirect(w, r, ItemsURL(dataset), http.StatusSeeOther)
	default:
		h.fail(w, r, dataset, err)
	}
	return Item{}, false
}

func (h *Handler) formError(w http.ResponseWriter, r *http.Request, dataset, title string, data itemFormData, prefix string, err error) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		data.Errors = verr.Fields
	}
	status := httpx.StatusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("save item", slog.String("dataset", dataset), slog.Any("error", err))
	}
	page := h.templateData(r, title, dataset, data)
	page.Flash = &shared.FlashMessage{Kind: "danger", Message: prefix + ": " + shared.UserSafeMessage(err)}
	h.render(w, status, "pages/item_form.html", page)
}

func (h *Handler) showSell(w http.ResponseWriter, r *http.Request) {
	dataset := h.dataset(r)
	h.render(w, http.StatusOK, "pages/sell.html", h.templateData(r, "Sell", dataset, sellPageData{}))
}

// quantityValue accepts a JSON number or a numeric string.
type quantityValue int64

func (q *quantityValue) UnmarshalJSON(data []byte) error {
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		n = json.Number(strings.TrimSpace(s))
	}
	*q = quantityValue(parseQuantity(n.String()))
	return nil
}

type sellRequest struct {
	ItemName     string        `json:"ItemName"`
	NameOfDealer string        `json:"NameOfDealer"`
	Quantity     quantityValue `json:"Quantity"`
}

type sellResponse struct {
	OK      bool    `json:"ok"`
	Receipt Receipt `json:"receipt"`
}

func (h *Handler) sell(w http.ResponseWriter, r *http.Request) {
	dataset := h.dataset(r)
	if httpx.WantsJSON(r) {
		h.sellJSON(w, r, dataset)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := sellForm{
		ItemName:     strings.TrimSpace(r.PostFormValue("ItemName")),
		NameOfDealer: strings.TrimSpace(r.PostFormValue("NameOfDealer")),
		Quantity:     strings.TrimSpace(r.PostFormValue("Quantity")),
	}
	sale, err := h.service.SellByName(r.Context(), dataset, form.ItemName, form.NameOfDealer, parseQuantity(form.Quantity))
	if err != nil {
		status := httpx.StatusFor(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("sell", slog.String("dataset", dataset), slog.Any("error", err))
		}
		data := h.templateData(r, "Sell", dataset, sellPageData{Form: form})
		data.Flash = &shared.FlashMessage{Kind: "danger", Message: saleMessage(err)}
		h.render(w, status, "pages/sell.html", data)
		return
	}
	remember(r, dataset)
	data := h.templateData(r, "Sell", dataset, sellPageData{Receipt: &sale.Receipt})
	data.Flash = &shared.FlashMessage{Kind: "success", Message: "Sale recorded"}
	h.render(w, http.StatusOK, "pages/sell.html", data)
}

func (h *Handler) sellJSON(w http.ResponseWriter, r *http.Request, dataset string) {
	var req sellRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "request body must be a JSON object")
		return
	}
	sale, err := h.service.SellByName(r.Context(), dataset, req.ItemName, req.NameOfDealer, int64(req.Quantity))
	if err != nil {
		if httpx.StatusFor(err) == http.StatusInternalServerError {
			h.logger.Error("sell", slog.String("dataset", dataset), slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sellResponse{OK: true, Receipt: sale.Receipt})
}

func saleMessage(err error) string {
	switch {
	case errors.Is(err, ErrItemNotFound):
		return "Item not found"
	case errors.Is(err, ErrInvalidQuantity):
		return "Quantity must be positive"
	case errors.Is(err, ErrInsufficientStock):
		return "Insufficient stock"
	}
	return shared.UserSafeMessage(err)
}

// parseQuantity maps anything that is not an integer to -1 so it fails as an invalid quantity.
func parseQuantity(raw string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return -1
	}
	return n
}

// parseItemForm reads item fields from form values. Fields absent from the
// form keep the value in base.
func parseItemForm(form url.Values, base Item) (Item, map[string]string) {
	item := base
	errs := map[string]string{}
	has := func(key string) bool {
		_, ok := form[key]
		return ok
	}
	if has("SNo") {
		if raw := strings.TrimSpace(form.Get("SNo")); raw != "" {
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || n < 1 {
				errs["SNo"] = "must be a positive whole number"
			} else {
				item.SNo = n
			}
		}
	}
	if has("ItemName") {
		item.ItemName = strings.TrimSpace(form.Get("ItemName"))
	}
	if has("NameOfDealer") {
		item.NameOfDealer = strings.TrimSpace(form.Get("NameOfDealer"))
	}
	parseFloat := func(key string, dst *float64) {
		if !has(key) {
			return
		}
		raw := strings.TrimSpace(form.Get(key))
		if raw == "" {
			*dst = 0
			return
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			errs[key] = "must be a number"
			return
		}
		*dst = v
	}
	parseInt := func(key string, dst *int64) {
		if !has(key) {
			return
		}
		raw := strings.TrimSpace(form.Get(key))
		if raw == "" {
			*dst = 0
			return
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			errs[key] = "must be a whole number"
			return
		}
		*dst = v
	}
	parseFloat("CostPrice", &item.CostPrice)
	parseFloat("SellingPrice", &item.SellingPrice)
	parseInt("StockBought", &item.StockBought)
	parseInt("StockSold", &item.StockSold)
	if has("DateOfPurchase") {
		raw := strings.TrimSpace(form.Get("DateOfPurchase"))
		if raw == "" {
			item.DateOfPurchase = nil
		} else if d, err := time.Parse(dateLayout, raw); err != nil {
			errs["DateOfPurchase"] = "must be a date (YYYY-MM-DD)"
		} else {
			item.DateOfPurchase = &d
		}
	}
	return item, errs
}

func editAction(sno int64) string {
	return "/items/" + strconv.FormatInt(sno, 10) + "/edit"
}

func atoiDefault(raw string, fallback int) int {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
