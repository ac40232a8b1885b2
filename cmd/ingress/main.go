// Ingress terminates provider webhooks: it verifies signatures, records
// receipts, and hands everything else to the task queue. No business logic
// runs here; a webhook either becomes a task or a 2xx no-op.
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

	"github.com/marcioluisms/hotelly2-sub000/internal/config"
	"github.com/marcioluisms/hotelly2-sub000/internal/httpapi"
	"github.com/marcioluisms/hotelly2-sub000/internal/identity"
	"github.com/marcioluisms/hotelly2-sub000/internal/logging"
	"github.com/marcioluisms/hotelly2-sub000/internal/payments"
	"github.com/marcioluisms/hotelly2-sub000/internal/store"
	"github.com/marcioluisms/hotelly2-sub000/internal/tasks"
	"github.com/marcioluisms/hotelly2-sub000/internal/whatsapp"
)

// Inbound messages per contact per window before webhooks are acknowledged
// and dropped.
const (
	inboundLimit  = 30
	inboundWindow = time.Minute
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(config.RoleIngress)
	if err != nil {
		return err
	}
	logger := logging.New("ingress", cfg.Env)
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

	var limiter *whatsapp.RateLimiter
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		limiter = whatsapp.NewRateLimiter(rdb, "inbound", inboundLimit, inboundWindow)
	}

	ingress := &httpapi.Ingress{
		Pool:              pool,
		Vault:             vault,
		ContactHashSecret: cfg.ContactHashSecret,
		WhatsApp:          whatsappProviders(cfg),
		Payments:          payments.NewStripe(cfg.StripeAPIKey, cfg.StripeWebhookSecret),
		Dispatcher:        dispatcher,
		Limiter:           limiter,
	}

	r := chi.NewRouter()
	r.Use(logging.Middleware(logger))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	ingress.Routes(r)

	return serve(ctx, logger, cfg.Port, r)
}

// whatsappProviders builds the channel map from configuration. Both channels
// can be live at once; each webhook path selects its own verifier.
func whatsappProviders(cfg *config.Config) map[string]whatsapp.Provider {
	providers := map[string]whatsapp.Provider{}
	if cfg.MetaAppSecret != "" || cfg.WhatsAppProvider == whatsapp.ChannelMeta {
		providers[whatsapp.ChannelMeta] = whatsapp.NewMeta(
			cfg.WhatsAppBaseURL, cfg.WhatsAppInstance, cfg.WhatsAppAPIKey, cfg.MetaAppSecret)
	}
	if cfg.WhatsAppProvider == whatsapp.ChannelEvolution {
		providers[whatsapp.ChannelEvolution] = whatsapp.NewEvolution(
			cfg.WhatsAppBaseURL, cfg.WhatsAppInstance, cfg.WhatsAppAPIKey)
	}
	return providers
}

// serve runs the HTTP server until the context is cancelled, then drains
// in-flight requests.
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
