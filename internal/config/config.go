// Package config loads process configuration from the environment.
//
// Both binaries (ingress and worker) share one Config; fields that only one
// role needs are validated by that role at startup. A .env file is honored in
// development; production relies on real environment variables.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Role distinguishes the two runtime binaries sharing this configuration.
type Role string

const (
	RoleIngress Role = "ingress"
	RoleWorker  Role = "worker"
)

// Config carries every externally supplied setting. Secrets are raw bytes
// where the consumer needs bytes (vault key, contact-hash secret) and strings
// elsewhere.
type Config struct {
	Role Role
	Port int
	Env  string // "dev" | "staging" | "prod"

	DatabaseURL   string
	RunMigrations bool
	RedisAddr     string // optional; disables rate limiting when empty
	RedisPassword string

	// OIDC for dashboard authentication and task invocation.
	OIDCIssuerURL string
	OIDCAudience  string // dashboard audience (client id)

	// Task dispatch (Cloud Tasks) and worker-side verification.
	TasksProject        string
	TasksLocation       string
	TasksQueue          string
	TasksServiceAccount string
	WorkerBaseURL       string // canonical worker URL; OIDC audience for tasks

	StripeAPIKey        string
	StripeWebhookSecret string

	WhatsAppProvider string // "meta" | "evolution"
	WhatsAppBaseURL  string
	WhatsAppInstance string
	WhatsAppAPIKey   string
	MetaAppSecret    string

	VaultKey          []byte // 32 bytes
	ContactHashSecret []byte // 32 bytes
	VaultTTL          time.Duration

	// Intent classifier endpoint; empty disables the LLM bridge entirely and
	// the deterministic parser handles everything.
	ClassifierURL    string
	ClassifierAPIKey string

	HoldTTL            time.Duration
	CheckoutSuccessURL string
	CheckoutCancelURL  string

	TaskDeadline time.Duration
}

// Load reads the environment (and .env in dev) into a Config and fails fast
// on anything malformed. Role-specific required fields are checked here so a
// misconfigured deploy dies at boot, not on the first request.
func Load(role Role) (*Config, error) {
	// Ignore the error: absence of .env is the normal production case.
	_ = godotenv.Load()

	cfg := &Config{
		Role:                role,
		Env:                 getenvDefault("HOTELLY_ENV", "dev"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		RedisPassword:       os.Getenv("REDIS_PASSWORD"),
		OIDCIssuerURL:       os.Getenv("OIDC_ISSUER_URL"),
		OIDCAudience:        os.Getenv("OIDC_AUDIENCE"),
		TasksProject:        os.Getenv("TASKS_PROJECT"),
		TasksLocation:       os.Getenv("TASKS_LOCATION"),
		TasksQueue:          os.Getenv("TASKS_QUEUE"),
		TasksServiceAccount: os.Getenv("TASKS_SERVICE_ACCOUNT"),
		WorkerBaseURL:       os.Getenv("WORKER_BASE_URL"),
		StripeAPIKey:        os.Getenv("STRIPE_API_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		WhatsAppProvider:    getenvDefault("WHATSAPP_PROVIDER", "evolution"),
		WhatsAppBaseURL:     os.Getenv("WHATSAPP_BASE_URL"),
		WhatsAppInstance:    os.Getenv("WHATSAPP_INSTANCE"),
		WhatsAppAPIKey:      os.Getenv("WHATSAPP_API_KEY"),
		MetaAppSecret:       os.Getenv("META_APP_SECRET"),
		ClassifierURL:       os.Getenv("CLASSIFIER_URL"),
		ClassifierAPIKey:    os.Getenv("CLASSIFIER_API_KEY"),
		CheckoutSuccessURL:  os.Getenv("CHECKOUT_SUCCESS_URL"),
		CheckoutCancelURL:   os.Getenv("CHECKOUT_CANCEL_URL"),
	}

	var err error
	if cfg.Port, err = intEnv("PORT", 8080); err != nil {
		return nil, err
	}
	if cfg.RunMigrations, err = boolEnv("RUN_MIGRATIONS", false); err != nil {
		return nil, err
	}
	if cfg.VaultTTL, err = durEnv("VAULT_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.TaskDeadline, err = durEnv("TASK_DEADLINE", 45*time.Second); err != nil {
		return nil, err
	}
	if cfg.HoldTTL, err = durEnv("HOLD_TTL", 30*time.Minute); err != nil {
		return nil, err
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("config: DATABASE_URL is required")
	}
	if cfg.OIDCIssuerURL == "" {
		return nil, fmt.Errorf("config: OIDC_ISSUER_URL is required")
	}
	if cfg.WorkerBaseURL == "" {
		return nil, fmt.Errorf("config: WORKER_BASE_URL is required")
	}

	if cfg.VaultKey, err = hexKey("VAULT_KEY"); err != nil {
		return nil, err
	}
	if cfg.ContactHashSecret, err = hexKey("CONTACT_HASH_SECRET"); err != nil {
		return nil, err
	}

	switch role {
	case RoleIngress:
		if cfg.StripeWebhookSecret == "" {
			return nil, fmt.Errorf("config: STRIPE_WEBHOOK_SECRET is required for ingress")
		}
		if cfg.TasksProject == "" || cfg.TasksLocation == "" || cfg.TasksQueue == "" {
			return nil, fmt.Errorf("config: TASKS_PROJECT, TASKS_LOCATION and TASKS_QUEUE are required for ingress")
		}
	case RoleWorker:
		if cfg.StripeAPIKey == "" {
			return nil, fmt.Errorf("config: STRIPE_API_KEY is required for worker")
		}
	default:
		return nil, fmt.Errorf("config: unknown role %q", role)
	}

	return cfg, nil
}

// hexKey decodes a 32-byte hex-encoded secret. The vault key and the
// contact-hash secret must match byte-for-byte between ingress and worker;
// a mismatch surfaces later as an AES authentication failure, so the length
// is the only thing we can check here.
func hexKey(name string) ([]byte, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return nil, fmt.Errorf("config: %s is required", name)
	}
	key, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("config: %s is not valid hex: %w", name, err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("config: %s must decode to 32 bytes, got %d", name, len(key))
	}
	return key, nil
}

func getenvDefault(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func intEnv(name string, def int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer: %w", name, err)
	}
	return v, nil
}

func boolEnv(name string, def bool) (bool, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("config: %s must be a boolean: %w", name, err)
	}
	return v, nil
}

func durEnv(name string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be a duration: %w", name, err)
	}
	return v, nil
}
