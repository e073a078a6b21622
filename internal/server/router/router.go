package router

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"

	"github.com/localpay/localpay/internal/auth"
	"github.com/localpay/localpay/internal/domain/users"
	"github.com/localpay/localpay/internal/errmsg"
	"github.com/localpay/localpay/internal/processing"
	"github.com/localpay/localpay/internal/recon"
	"github.com/localpay/localpay/internal/server/handlers"
	"github.com/localpay/localpay/internal/storage"
)

type Options struct {
	log    *slog.Logger
	secret []byte
}

func NewRouter(store storage.Storage, engine *processing.Engine, reconciler *recon.Reconciler, opts ...Option) chi.Router {
	r := chi.NewRouter()

	rOpts := Options{
		log:    slog.New(slog.NewJSONHandler(os.Stdout, nil)),
		secret: []byte(""),
	}

	for _, opt := range opts {
		opt(&rOpts)
	}

	tokenAuth := jwtauth.New("HS256", rOpts.secret, nil)

	r.Use(
		middleware.Recoverer,
		middleware.StripSlashes,
		middleware.Logger,
	)

	h := handlers.NewHandlers(store, engine, reconciler,
		handlers.WithLogger(rOpts.log),
		handlers.WithAuth(auth.NewJWTAuth(rOpts.secret)),
	)

	r.Get("/ping", h.Ping)

	r.Post("/api/user/login", h.UserLogin)

	r.Group(func(r chi.Router) {
		r.Use(
			jwtauth.Verifier(tokenAuth),
			jwtauth.Authenticator(tokenAuth),
		)

		r.Get("/api/user/balance", h.GetBalance)
		r.Get("/api/user/payments", h.GetUserPayments)
		r.Post("/api/payments", h.CreatePayment)
		r.Get("/api/payments/{id}", h.GetPayment)
		r.Post("/api/account/check", h.CheckAccount)

		r.Group(func(r chi.Router) {
			r.Use(adminOnly)

			r.Post("/api/user/register", h.RegisterUser)
			r.Get("/api/payments", h.ListPayments)
			r.Post("/api/payments/{id}/annul", h.AnnulPayment)
			r.Post("/api/users/{login}/refill", h.RefillBalance)
			r.Post("/api/users/{login}/writeoff", h.WriteOffBalance)
			r.Patch("/api/users/{login}", h.UpdateProfile)
			r.Delete("/api/users/{login}", h.DeactivateUser)
			r.Get("/api/comments", h.ListComments)
			r.Post("/api/recon", h.Reconcile)
			r.Post("/api/recon/batch", h.ReconcileBatch)
		})
	})

	return r
}

// adminOnly gates the administrative routes on the JWT role claim. The
// verifier has already validated the token signature by this point.
func adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, claims, err := jwtauth.FromContext(r.Context())
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)

			return
		}

		role, _ := claims["role"].(string)

		if role != string(users.RoleAdmin) {
			http.Error(w, errmsg.ErrAdminRequired.Error(), errmsg.ErrAdminRequired.Code)

			return
		}

		next.ServeHTTP(w, r)
	})
}

type Option func(r *Options)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.log = logger
	}
}

func WithSecret(secret []byte) Option {
	return func(o *Options) {
		o.secret = secret
	}
}
