package api

import (
	"encoding/json"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"apotek/m/domain"
	"apotek/m/internal/auth"
	"apotek/m/internal/catalog"
	"apotek/m/internal/config"
	"apotek/m/internal/events"
	"apotek/m/internal/imagestore"
	"apotek/m/internal/store"
)

// StaticPrefix is the URL path under which uploaded images are served.
const StaticPrefix = "/static/uploads"

const requestTimeout = 30 * time.Second

// Handler bundles dependencies for HTTP handlers.
type Handler struct {
	cfg       config.Config
	accounts  *store.Accounts
	medicines *store.Medicines
	sales     *store.Sales
	reports   *store.Reports
	catalog   *catalog.Service
	images    *imagestore.Store
	tokens    *auth.Issuer
	events    events.Publisher
	limiter   *ipLimiter
	log       zerolog.Logger
	now       func() time.Time
}

// New constructs a Handler.
func New(db *sqlx.DB, cfg config.Config, images *imagestore.Store, publisher events.Publisher, log zerolog.Logger) *Handler {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	medicines := store.NewMedicines(db)
	return &Handler{
		cfg:       cfg,
		accounts:  store.NewAccounts(db, cfg.BcryptCost),
		medicines: medicines,
		sales:     store.NewSales(db),
		reports:   store.NewReports(db),
		catalog:   catalog.New(medicines, images, log),
		images:    images,
		tokens:    auth.NewIssuer(cfg.Secret, cfg.TokenTTL),
		events:    publisher,
		limiter:   newIPLimiter(cfg.LoginRate, cfg.LoginBurst),
		log:       log,
		now:       time.Now,
	}
}

// Router wires up the HTTP API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if h.cfg.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
	}))

	r.Get("/health", h.health)
	r.Handle(StaticPrefix+"/*", http.StripPrefix(StaticPrefix+"/", http.FileServer(filesOnly{http.Dir(h.images.Dir())})))

	r.Route(apiRoot(h.cfg.APIPrefix), func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))

		r.Post("/login", h.login)

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.authenticate, requireRole(domain.RoleAdmin))

			r.Route("/medicine", func(r chi.Router) {
				r.Get("/", h.listMedicines)
				r.Post("/", h.createMedicine)
				r.Get("/{id}", h.getMedicine)
				r.Put("/{id}", h.updateMedicine)
				r.Delete("/{id}", h.deleteMedicine)
			})

			r.Route("/cashier", func(r chi.Router) {
				r.Get("/", h.listCashiers)
				r.Post("/", h.createCashier)
				r.Put("/{id}", h.updateCashier)
				r.Delete("/{id}", h.deleteCashier)
			})

			r.Get("/report/weekly", h.weeklyReport)
		})

		r.Route("/cashier", func(r chi.Router) {
			r.Use(h.authenticate, requireRole(domain.RoleCashier))

			r.Get("/medicine", h.listSellableMedicines)
			r.Get("/sale", h.listTodaySales)
			r.Post("/sale", h.recordSale)
			r.Get("/sale/{id}", h.getSale)
		})
	})

	return r
}

// filesOnly hides directories and dot files, so neither listings nor staged
// uploads are ever served.
type filesOnly struct {
	fs http.FileSystem
}

func (f filesOnly) Open(name string) (http.File, error) {
	if strings.HasPrefix(path.Base(name), ".") {
		return nil, fs.ErrNotExist
	}
	file, err := f.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil || info.IsDir() {
		_ = file.Close()
		return nil, fs.ErrNotExist
	}
	return file, nil
}

// apiRoot lets an empty prefix mount the API at the root.
func apiRoot(prefix string) string {
	if prefix == "" {
		return "/"
	}
	return prefix
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Helpers

func decodeJSON(r *http.Request, dest interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
