// Worker hosts the task endpoints behind queue OIDC verification and the
// staff dashboard API behind user OIDC. All business transactions run here.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/marcioluisms/hotelly2-sub000/internal/authz"
	"github.com/marcioluisms/hotelly2-sub000/internal/availability"
	"github.com/marcioluisms/hotelly2-sub000/internal/config"
	"github.com/marcioluisms/hotelly2-sub000/internal/httpapi"
	"github.com/marcioluisms/hotelly2-sub000/internal/identity"
	"github.com/marcioluisms/hotelly2-sub000/internal/intent"
	"github.com/marcioluisms/hotelly2-sub000/internal/inventory"
	"github.com/marcioluisms/hotelly2-sub000/internal/logging"
	"github.com/marcioluisms/hotelly2-sub000/internal/payments"
	"github.com/marcioluisms/hotelly2-sub000/internal/reservation"
	"github.com/marcioluisms/hotelly2-sub000/internal/store"
	"github.com/marcioluisms/hotelly2-sub000/internal/tasks"
	"github.com/marcioluisms/hotelly2-sub000/internal/whatsapp"
)

// Identity tokens on task requests are minted by the queue's service
// account through Google's issuer.
const taskTokenIssuer = "https://accounts.google.com"

// Outbound messages per contact per window. Generous for a booking flow;
// the ceiling exists to contain a retry storm, not to throttle guests.
const (
	sendLimit  = 10
	sendWindow = time.Minute
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(config.RoleWorker)
	if err != nil {
		return err
	}
	logger := logging.New("worker", cfg.Env)
	ctx, stop := signal.NotifyContext(logger.WithContext(context.Background()),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.RunMigrations {
		if err := store.Migrate(cfg.DatabaseURL); err != nil {
			return err
		}
		logger.Info().Msg("migrations applied")
	}

	pool, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	vault, err := identity.NewVault(cfg.VaultKey, cfg.VaultTTL)
	if err != nil {
		return err
	}

	dispatcher, err := tasks.NewCloudTasksDispatcher(ctx,
		cfg.TasksProject, cfg.TasksLocation, cfg.TasksQueue,
		cfg.TasksServiceAccount, cfg.WorkerBaseURL)
	if err != nil {
		return err
	}
	defer dispatcher.Close()

	verifier, err := tasks.NewVerifier(ctx, taskTokenIssuer, cfg.WorkerBaseURL)
	if err != nil {
		return err
	}
	auth, err := authz.NewAuthenticator(ctx, cfg.OIDCIssuerURL, cfg.OIDCAudience, pool)
	if err != nil {
		return err
	}

	var limiter *whatsapp.RateLimiter
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		limiter = whatsapp.NewRateLimiter(rdb, "send", sendLimit, sendWindow)
	}

	providers := map[string]whatsapp.Provider{}
	switch cfg.WhatsAppProvider {
	case whatsapp.ChannelMeta:
		providers[whatsapp.ChannelMeta] = whatsapp.NewMeta(
			cfg.WhatsAppBaseURL, cfg.WhatsAppInstance, cfg.WhatsAppAPIKey, cfg.MetaAppSecret)
	default:
		providers[whatsapp.ChannelEvolution] = whatsapp.NewEvolution(
			cfg.WhatsAppBaseURL, cfg.WhatsAppInstance, cfg.WhatsAppAPIKey)
	}

	var classifier intent.Classifier
	if cfg.ClassifierURL != "" {
		classifier = intent.NewHTTPClassifier(cfg.ClassifierURL, cfg.ClassifierAPIKey)
	}

	stripe := payments.NewStripe(cfg.StripeAPIKey, cfg.StripeWebhookSecret)
	engine := inventory.NewEngine(pool)

	worker := &httpapi.Worker{
		Pool:               pool,
		Inventory:          engine,
		Payments:           stripe,
		Sender:             whatsapp.NewSender(pool, vault, providers, limiter),
		Dispatcher:         dispatcher,
		Classifier:         classifier,
		HoldTTL:            cfg.HoldTTL,
		CheckoutSuccessURL: cfg.CheckoutSuccessURL,
		CheckoutCancelURL:  cfg.CheckoutCancelURL,
	}
	dashboard := &httpapi.Dashboard{
		Pool:               pool,
		Reservations:       reservation.NewService(pool),
		Inventory:          engine,
		Availability:       availability.New(pool),
		Payments:           stripe,
		Dispatcher:         dispatcher,
		Auth:               auth,
		RBAC:               authz.NewRBAC(pool),
		HoldTTL:            cfg.HoldTTL,
		CheckoutSuccessURL: cfg.CheckoutSuccessURL,
		CheckoutCancelURL:  cfg.CheckoutCancelURL,
	}

	r := chi.NewRouter()
	r.Use(logging.Middleware(logger))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Group(func(gr chi.Router) {
		gr.Use(verifier.Middleware)
		worker.Routes(gr)
	})
	r.Route("/api/v1", dashboard.Routes)

	return serve(ctx, logger, cfg.Port, r)
}

func serve(ctx context.Context, logger zerolog.Logger, port int, handler http.Handler) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
