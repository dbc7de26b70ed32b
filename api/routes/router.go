package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/maisonverdier/boutique-backend/api/controllers"
	"github.com/maisonverdier/boutique-backend/api/middleware"
	"github.com/maisonverdier/boutique-backend/internal/orders"
	"github.com/maisonverdier/boutique-backend/internal/settings"
	"github.com/maisonverdier/boutique-backend/internal/shipping"
	"github.com/maisonverdier/boutique-backend/internal/subscriptions"
	pkgauth "github.com/maisonverdier/boutique-backend/pkg/auth"
	"github.com/maisonverdier/boutique-backend/pkg/config"
	"github.com/maisonverdier/boutique-backend/pkg/db"
	"github.com/maisonverdier/boutique-backend/pkg/logger"
	"github.com/maisonverdier/boutique-backend/pkg/redis"
)

// Deps carries everything the router wires into handlers.
type Deps struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            db.Pinger
	Redis         redis.Pinger
	Registry      *prometheus.Registry
	Orders        orders.Service
	Subscriptions subscriptions.Service
	Shipping      shipping.Service
	Settings      settings.Service
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Redis))
	})

	if deps.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/relays", controllers.SearchRelays(deps.Shipping, logg))

		// Checkout serves guests and signed-in customers alike. A token,
		// when sent, must still be valid.
		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalAuth(cfg.JWT, logg))

			r.Post("/orders", controllers.CreateOrder(deps.Orders, logg))
			r.Post("/orders/{orderId}/confirm", controllers.ConfirmOrder(deps.Orders, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))

			r.Get("/orders", controllers.ListMyOrders(deps.Orders, logg))
			r.Get("/orders/{orderId}", controllers.OrderDetail(deps.Orders, logg))

			r.Route("/subscriptions", func(r chi.Router) {
				r.Post("/", controllers.Subscribe(deps.Subscriptions, logg))
				r.Post("/confirm", controllers.ConfirmSubscription(deps.Subscriptions, logg))
				r.Post("/skip", controllers.SkipDelivery(deps.Subscriptions, logg))
				r.Post("/unskip", controllers.UnskipDelivery(deps.Subscriptions, logg))
				r.Delete("/", controllers.CancelSubscription(deps.Subscriptions, logg))
			})
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(pkgauth.RoleAdmin, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.AdminSearchOrders(deps.Orders, logg))
			r.Get("/{orderId}", controllers.AdminOrderDetail(deps.Orders, logg))
			r.Post("/{orderId}/refund", controllers.AdminRefundOrder(deps.Orders, logg))
			r.Post("/{orderId}/notes", controllers.AdminAddOrderNote(deps.Orders, logg))
			r.Delete("/{orderId}/notes/{noteId}", controllers.AdminRemoveOrderNote(deps.Orders, logg))
			r.Post("/{orderId}/ship", controllers.AdminShipOrder(deps.Shipping, logg))
			r.Get("/{orderId}/tracking", controllers.AdminTrackOrder(deps.Shipping, logg))
		})

		r.Route("/shipments", func(r chi.Router) {
			r.Post("/bulk", controllers.AdminBulkShip(deps.Shipping, logg))
			r.Post("/preorders", controllers.AdminShipPreorders(deps.Shipping, logg))
		})

		r.Route("/settings", func(r chi.Router) {
			r.Get("/delivery-calendar", controllers.AdminGetDeliveryCalendar(deps.Settings, logg))
			r.Put("/delivery-calendar", controllers.AdminSetDeliveryCalendar(deps.Settings, logg))
			r.Post("/delivery-calendar/resync", controllers.AdminResyncSchedules(deps.Settings, deps.Subscriptions, logg))
			r.Get("/shipping-rates", controllers.AdminGetShippingRates(deps.Settings, logg))
			r.Put("/shipping-rates", controllers.AdminSetShippingRates(deps.Settings, logg))
		})
	})

	return r
}
