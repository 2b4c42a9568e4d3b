package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/meridian-erp/meridian-erp/internal/auth"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/masterdata/branches"
	"github.com/meridian-erp/meridian-erp/internal/masterdata/categories"
	"github.com/meridian-erp/meridian-erp/internal/masterdata/products"
	"github.com/meridian-erp/meridian-erp/internal/masterdata/producttypes"
	"github.com/meridian-erp/meridian-erp/internal/observability"
	"github.com/meridian-erp/meridian-erp/internal/purchasing"
	"github.com/meridian-erp/meridian-erp/internal/reporting"
	"github.com/meridian-erp/meridian-erp/internal/stockaudit"
	"github.com/meridian-erp/meridian-erp/internal/transformation"
	"github.com/meridian-erp/meridian-erp/internal/waste"
	"github.com/meridian-erp/meridian-erp/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger *slog.Logger
	Config *Config
	Auth   auth.Middleware

	LedgerHandler         *ledger.Handler
	PurchasingHandler     *purchasing.Handler
	TransformationHandler *transformation.Handler
	WasteHandler          *waste.Handler
	StockAuditHandler     *stockaudit.Handler
	ProductsHandler       *products.Handler
	CategoriesHandler     *categories.Handler
	ProductTypesHandler   *producttypes.Handler
	BranchesHandler       *branches.Handler
	ReportingHandler      *reporting.Handler
	JobHandler            *jobs.Handler

	Metrics *observability.Metrics
}

// NewRouter constructs the chi.Router with Meridian defaults. Health and
// metrics stay outside the authenticated API surface.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(params.Auth.Authenticate)

		r.Route("/ledger", params.LedgerHandler.MountRoutes)
		r.Route("/purchases", params.PurchasingHandler.MountRoutes)
		r.Route("/transformations", params.TransformationHandler.MountRoutes)
		r.Route("/waste", params.WasteHandler.MountRoutes)
		r.Route("/audits", params.StockAuditHandler.MountRoutes)

		r.Route("/masterdata", func(r chi.Router) {
			r.Route("/products", params.ProductsHandler.MountRoutes)
			r.Route("/categories", params.CategoriesHandler.MountRoutes)
			r.Route("/product-types", params.ProductTypesHandler.MountRoutes)
			r.Route("/branches", params.BranchesHandler.MountRoutes)
		})

		r.Route("/reports", params.ReportingHandler.MountRoutes)

		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}
