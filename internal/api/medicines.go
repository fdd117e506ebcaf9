package api

import (
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"apotek/m/internal/catalog"
	"apotek/m/internal/store"
)

func (h *Handler) listMedicines(w http.ResponseWriter, r *http.Request) {
	medicines, err := h.medicines.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newMedicineViews(medicines))
}

func (h *Handler) listSellableMedicines(w http.ResponseWriter, r *http.Request) {
	medicines, err := h.medicines.ListInStock(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newMedicineViews(medicines))
}

func (h *Handler) getMedicine(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	m, err := h.medicines.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newMedicineView(m))
}

func (h *Handler) createMedicine(w http.ResponseWriter, r *http.Request) {
	if !h.parseMultipart(w, r) {
		return
	}
	defer r.MultipartForm.RemoveAll()

	form, err := readMedicineForm(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if form.name == nil || form.stock == nil || form.unitPrice == nil {
		respondError(w, http.StatusBadRequest, "name, stock, unit_price and image are required")
		return
	}
	img, closeImage, err := formImage(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer closeImage()

	m, err := h.catalog.Create(r.Context(), store.NewMedicine{
		Name:      *form.name,
		Stock:     *form.stock,
		UnitPrice: *form.unitPrice,
	}, img)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, newMedicineView(m))
}

func (h *Handler) updateMedicine(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if !h.parseMultipart(w, r) {
		return
	}
	defer r.MultipartForm.RemoveAll()

	form, err := readMedicineForm(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	img, closeImage, err := formImage(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer closeImage()

	m, err := h.catalog.Update(r.Context(), id, store.MedicineChanges{
		Name:      form.name,
		Stock:     form.stock,
		UnitPrice: form.unitPrice,
	}, img)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newMedicineView(m))
}

func (h *Handler) deleteMedicine(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.catalog.Delete(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "medicine deleted"})
}

// parseMultipart rejects anything but multipart/form-data with 415.
func (h *Handler) parseMultipart(w http.ResponseWriter, r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		respondError(w, http.StatusUnsupportedMediaType, "content type must be multipart/form-data")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUpload+1<<20)
	if err := r.ParseMultipartForm(h.cfg.MaxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return false
		}
		respondError(w, http.StatusBadRequest, "invalid multipart form")
		return false
	}
	return true
}

// medicineForm holds the submitted fields; absent or blank fields are nil.
type medicineForm struct {
	name      *string
	stock     *int64
	unitPrice *decimal.Decimal
}

func readMedicineForm(r *http.Request) (medicineForm, error) {
	var form medicineForm
	if v := strings.TrimSpace(r.FormValue("name")); v != "" {
		form.name = &v
	}
	if v := strings.TrimSpace(r.FormValue("stock")); v != "" {
		stock, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return medicineForm{}, &store.ValidationError{Field: "stock", Message: "must be an integer"}
		}
		form.stock = &stock
	}
	if v := strings.TrimSpace(r.FormValue("unit_price")); v != "" {
		price, err := decimal.NewFromString(v)
		if err != nil {
			return medicineForm{}, &store.ValidationError{Field: "unit_price", Message: "must be a decimal number"}
		}
		form.unitPrice = &price
	}
	return form, nil
}

// formImage returns the uploaded image, or nil when none was sent.
func formImage(r *http.Request) (*catalog.Image, func(), error) {
	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, func() {}, nil
	}
	if err != nil {
		return nil, func() {}, &store.ValidationError{Field: "image", Message: "could not be read"}
	}
	return &catalog.Image{Filename: header.Filename, Body: file}, func() { _ = file.Close() }, nil
}
