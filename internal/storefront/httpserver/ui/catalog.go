package ui

import (
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"uemfood.app/storefront/internal/storefront/backend"
	"uemfood.app/storefront/internal/storefront/httpserver/middleware"
	"uemfood.app/storefront/internal/storefront/observability"
	"uemfood.app/storefront/internal/storefront/session"
)

// Quantity bounds for a single checkout.
const (
	MinQuantity = 1
	MaxQuantity = 10
)

const catalogGridID = "catalog-grid"

// HomeData backs the menu page and its search fragment.
type HomeData struct {
	Query string
	Items []backend.FoodItem
	Error string
}

// ProductData backs the product detail page.
type ProductData struct {
	Item        *backend.FoodItem
	Quantity    int
	Total       float64
	MinQuantity int
	MaxQuantity int
	Error       string
}

// AddFoodData backs the administrator form.
type AddFoodData struct {
	Title              string
	Price              string
	PassphraseRequired bool
	Error              string
}

// Home renders the catalog, optionally filtered by the q title search. htmx searches targeting
// the grid receive only the grid fragment.
func (h *Handlers) Home(w http.ResponseWriter, r *http.Request) {
	data := HomeData{Query: strings.TrimSpace(r.URL.Query().Get("q"))}
	items, err := h.backend.ListCatalog(r.Context())
	if err != nil {
		observability.FromContext(r.Context()).Warn("fetch menu items", zap.Error(err))
		data.Error = "Failed to fetch menu items"
	} else {
		data.Items = FilterCatalog(items, data.Query)
	}

	if middleware.IsPartialRequest(r.Context(), catalogGridID) {
		h.renderFragment(w, r, "home", catalogGridID, data)
		return
	}
	status := http.StatusOK
	if err != nil {
		status = http.StatusBadGateway
	}
	h.render(w, r, status, "home", "Menu", data)
}

// Product renders the detail page for the catalog item named by ?id=. Price and title come
// from the catalog, never from the request.
func (h *Handlers) Product(w http.ResponseWriter, r *http.Request) {
	item, ok := h.lookupItem(w, r, r.URL.Query().Get("id"))
	if !ok {
		return
	}
	h.render(w, r, http.StatusOK, "product", item.Title, newProductData(item, MinQuantity, ""))
}

// Checkout starts a hosted payment for quantity units of an item and navigates the browser to
// the payment page.
func (h *Handlers) Checkout(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form submission", http.StatusBadRequest)
		return
	}
	id := strings.TrimSpace(r.PostFormValue("id"))
	item, ok := h.lookupItem(w, r, id)
	if !ok {
		return
	}

	quantity, err := strconv.Atoi(strings.TrimSpace(r.PostFormValue("quantity")))
	if err != nil || quantity < MinQuantity || quantity > MaxQuantity {
		msg := "Quantity must be between " + strconv.Itoa(MinQuantity) + " and " + strconv.Itoa(MaxQuantity)
		h.render(w, r, http.StatusBadRequest, "product", item.Title, newProductData(item, MinQuantity, msg))
		return
	}

	next := "/product?id=" + item.ID
	target, err := h.backend.InitiatePayment(r.Context(), h.token(r), backend.PaymentRequest{
		Name:    item.Title,
		Amount:  item.Price.Float64() * float64(quantity),
		OrderID: item.ID,
	})
	if err != nil {
		if h.revokeOnUnauthorized(w, r, err, next) {
			return
		}
		observability.FromContext(r.Context()).Warn("payment initiation failed", zap.String("item", item.ID), zap.Error(err))
		h.render(w, r, backendStatus(err), "product", item.Title, newProductData(item, quantity, backend.UserMessage(err)))
		return
	}

	observability.FromContext(r.Context()).Info("payment initiated", zap.String("item", item.ID), zap.Int("quantity", quantity))
	middleware.Navigate(w, r, target)
}

// AddFoodForm renders the administrator form.
func (h *Handlers) AddFoodForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "addfood", "Add food", AddFoodData{PassphraseRequired: len(h.passphraseHash) > 0})
}

// AddFoodSubmit validates the form locally before forwarding it to the backend.
func (h *Handlers) AddFoodSubmit(w http.ResponseWriter, r *http.Request) {
	data := AddFoodData{PassphraseRequired: len(h.passphraseHash) > 0}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		data.Error = uploadErrorMessage(err)
		h.render(w, r, uploadErrorStatus(err), "addfood", "Add food", data)
		return
	}
	defer cleanupMultipart(r)

	data.Title = strings.TrimSpace(r.PostFormValue("title"))
	data.Price = strings.TrimSpace(r.PostFormValue("price"))
	if data.Title == "" || data.Price == "" {
		data.Error = msgFillAllFields
		h.render(w, r, http.StatusBadRequest, "addfood", "Add food", data)
		return
	}
	if price, err := strconv.ParseFloat(data.Price, 64); err != nil || price <= 0 {
		data.Error = "Please enter a valid price"
		h.render(w, r, http.StatusBadRequest, "addfood", "Add food", data)
		return
	}
	image, header, err := r.FormFile("pic_url_file")
	if err != nil {
		data.Error = "Please upload an image"
		h.render(w, r, http.StatusBadRequest, "addfood", "Add food", data)
		return
	}
	defer image.Close()

	if len(h.passphraseHash) > 0 {
		if err := bcrypt.CompareHashAndPassword(h.passphraseHash, []byte(r.PostFormValue("admin_passphrase"))); err != nil {
			observability.FromContext(r.Context()).Warn("admin passphrase rejected")
			data.Error = "Invalid Admin Password"
			h.render(w, r, http.StatusForbidden, "addfood", "Add food", data)
			return
		}
	}

	err = h.backend.CreateCatalogItem(r.Context(), h.token(r), backend.NewCatalogItem{
		Title: data.Title,
		Price: data.Price,
		Image: uploadFrom(image, header),
	})
	if err != nil {
		if h.revokeOnUnauthorized(w, r, err, "/addfood") {
			return
		}
		observability.FromContext(r.Context()).Warn("add food item failed", zap.Error(err))
		data.Error = backend.UserMessage(err)
		h.render(w, r, backendStatus(err), "addfood", "Add food", data)
		return
	}

	middleware.PushFlash(r.Context(), session.FlashSuccess, "Food item added successfully!")
	middleware.Navigate(w, r, "/")
}

// lookupItem resolves id against the catalog. Unknown ids send the visitor back to the menu.
func (h *Handlers) lookupItem(w http.ResponseWriter, r *http.Request, id string) (*backend.FoodItem, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return nil, false
	}
	items, err := h.backend.ListCatalog(r.Context())
	if err != nil {
		observability.FromContext(r.Context()).Warn("fetch catalog for product", zap.Error(err))
		h.renderStatus(w, r, http.StatusBadGateway, statusData{
			Heading: "Menu unavailable",
			Message: "Failed to fetch menu items",
		})
		return nil, false
	}
	item := FindItem(items, id)
	if item == nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return nil, false
	}
	return item, true
}

func newProductData(item *backend.FoodItem, quantity int, errMsg string) ProductData {
	return ProductData{
		Item:        item,
		Quantity:    quantity,
		Total:       item.Price.Float64() * float64(quantity),
		MinQuantity: MinQuantity,
		MaxQuantity: MaxQuantity,
		Error:       errMsg,
	}
}

// FilterCatalog returns the items whose title contains query, case-insensitively.
func FilterCatalog(items []backend.FoodItem, query string) []backend.FoodItem {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return items
	}
	out := make([]backend.FoodItem, 0, len(items))
	for _, item := range items {
		if strings.Contains(strings.ToLower(item.Title), query) {
			out = append(out, item)
		}
	}
	return out
}

// FindItem returns the catalog item with id or nil.
func FindItem(items []backend.FoodItem, id string) *backend.FoodItem {
	for i := range items {
		if items[i].ID == id {
			return &items[i]
		}
	}
	return nil
}
