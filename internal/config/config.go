package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // gym timezone must resolve on hosts without zoneinfo

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix namespaces every variable, e.g. DMGFIT_HTTP_ADDR.
const Prefix = "DMGFIT"

// ErrMemoryStoreInProd rejects the in-memory backend outside dev: it starts
// empty and loses every attempt on restart.
var ErrMemoryStoreInProd = errors.New("config: STORE=memory is only allowed with ENV=dev")

type Config struct {
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080" validate:"required"`
	GRPCAddr string `envconfig:"GRPC_ADDR" default:":9090"`
	Env      string `envconfig:"ENV" default:"dev" validate:"oneof=dev prod"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	// Store selects the persistence backend.
	Store       string `envconfig:"STORE" default:"sqlite" validate:"oneof=memory sqlite postgres"`
	DBPath      string `envconfig:"DB_PATH" default:"./data/dmgfit.db" validate:"required_if=Store sqlite"`
	DatabaseURL string `envconfig:"DATABASE_URL" validate:"required_if=Store postgres,omitempty,url"`

	KnownKiosks       []string `envconfig:"KNOWN_KIOSKS"`
	RequireKnownKiosk bool     `envconfig:"REQUIRE_KNOWN_KIOSK" default:"false"`

	// Check-in policy
	DecisionTimeout  time.Duration `envconfig:"DECISION_TIMEOUT" default:"3s" validate:"gt=0"`
	DuplicateWindow  time.Duration `envconfig:"DUPLICATE_WINDOW" default:"10m" validate:"gte=0"`
	DuplicateSameDay bool          `envconfig:"DUPLICATE_SAME_DAY" default:"false"`
	Timezone         string        `envconfig:"TIMEZONE" default:"America/Argentina/Buenos_Aires" validate:"required"`

	// Heartbeat retention
	HeartbeatRetentionDays int `envconfig:"HEARTBEAT_RETENTION_DAYS" default:"30" validate:"gte=0"` // 0 = keep forever
	PruneIntervalHours     int `envconfig:"PRUNE_INTERVAL_HOURS" default:"6" validate:"gte=0"`

	KioskRatePerSecond float64 `envconfig:"KIOSK_RATE_PER_SECOND" default:"5" validate:"gte=0"`
	KioskBurst         int     `envconfig:"KIOSK_BURST" default:"10" validate:"gte=0"`

	OTLPEndpoint string `envconfig:"OTLP_ENDPOINT"`
	ServiceName  string `envconfig:"SERVICE_NAME" default:"dmgfit-checkin"`

	location *time.Location
}

// Load reads an optional .env file, then the process environment, and
// validates the result. Variables already set in the environment win over
// the .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse environment: %w", err)
	}

	cfg.Env = strings.ToLower(strings.TrimSpace(cfg.Env))
	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.KnownKiosks = trimAll(cfg.KnownKiosks)

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("config: invalid: %w", err)
	}
	if cfg.Store == "memory" && !cfg.Dev() {
		return Config{}, ErrMemoryStoreInProd
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return Config{}, fmt.Errorf("config: timezone %q: %w", cfg.Timezone, err)
	}
	cfg.location = loc

	return cfg, nil
}

// Location is the gym's local timezone, used for access windows and the
// same-day duplicate rule.
func (c Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

func (c Config) Dev() bool { return c.Env == "dev" }

// ValidationErrors exposes the failing fields of a Load error, if any.
func ValidationErrors(err error) validator.ValidationErrors {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return verrs
	}
	return nil
}

func trimAll(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, p := range in {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
