package common

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestLoadConfigReadsEnv(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_URL", "./invoices.db")
	t.Setenv("SCAN_USERS", " ana@example.com, ,bob ")
	t.Setenv("SCAN_BATCH_SIZE", "not-a-number")
	t.Setenv("SCAN_TIME_BUDGET", "90s")
	t.Setenv("QUEUE_GUARD_BY_USER", "false")
	t.Setenv("OPENAI_TEMPERATURE", "0.2")
	t.Setenv("MAILBOX_PROVIDER", "")
	t.Setenv("GRPC_ADDR", "")
	t.Setenv("SCAN_OVERLAP", "")
	t.Setenv("SCAN_FIRST_LOOKBACK", "")
	t.Setenv("DEDUPE_AMOUNT_TOLERANCE", "0.5")

	cfg := LoadConfig()
	if cfg.Database.Driver != "sqlite" || cfg.Database.DSN != "./invoices.db" {
		t.Fatalf("unexpected database config %+v", cfg.Database)
	}
	if want := []string{"ana@example.com", "bob"}; !reflect.DeepEqual(cfg.Scan.Users, want) {
		t.Fatalf("expected users %v, got %v", want, cfg.Scan.Users)
	}
	if cfg.Scan.BatchSize != 5 {
		t.Fatalf("expected the default batch size for a bad value, got %d", cfg.Scan.BatchSize)
	}
	if cfg.Scan.TimeBudget != 90*time.Second {
		t.Fatalf("expected 90s budget, got %v", cfg.Scan.TimeBudget)
	}
	if cfg.Queue.GuardByUser {
		t.Fatalf("expected the per-user guard to be disabled")
	}
	if cfg.LLM.Temperature < 0.19 || cfg.LLM.Temperature > 0.21 {
		t.Fatalf("expected temperature 0.2, got %v", cfg.LLM.Temperature)
	}
	if !cfg.Scan.DedupeTolerance.Equal(decimal.RequireFromString("0.5")) {
		t.Fatalf("expected tolerance 0.5, got %s", cfg.Scan.DedupeTolerance)
	}
	if cfg.Scan.Overlap != 12*time.Hour || cfg.Scan.FirstScanLookback != 30*24*time.Hour {
		t.Fatalf("unexpected window defaults %+v", cfg.Scan)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected a valid config, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database: DatabaseConfig{Driver: "postgres", DSN: "postgres://localhost/invoices"},
			Scan:     ScanConfig{BatchSize: 5, TimeBudget: time.Minute, Provider: "gmail"},
			Server:   ServerConfig{GRPCAddr: ":8080"},
		}
	}
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"dsn", func(c *Config) { c.Database.DSN = "" }},
		{"batch", func(c *Config) { c.Scan.BatchSize = 0 }},
		{"budget", func(c *Config) { c.Scan.TimeBudget = 0 }},
		{"provider", func(c *Config) { c.Scan.Provider = "pop3" }},
		{"tolerance", func(c *Config) { c.Scan.DedupeTolerance = decimal.NewFromInt(-1) }},
		{"addr", func(c *Config) { c.Server.GRPCAddr = "" }},
	}
	if err := valid().Validate(); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
	for _, tc := range cases {
		cfg := valid()
		tc.mutate(cfg)
		if err := cfg.Validate(); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("%s: expected ErrInvalidInput, got %v", tc.name, err)
		}
	}
}

func TestToStatus(t *testing.T) {
	cases := []struct {
		err  error
		code codes.Code
	}{
		{NewAppError("BAD", "bad", ErrInvalidInput), codes.InvalidArgument},
		{fmt.Errorf("lookup: %w", ErrNotFound), codes.NotFound},
		{NewAppError("BUSY", "busy", ErrScanInFlight), codes.AlreadyExists},
		{ErrQueueFull, codes.ResourceExhausted},
		{ErrQueueClosed, codes.Unavailable},
		{errors.New("boom"), codes.Internal},
		{status.Error(codes.PermissionDenied, "no"), codes.PermissionDenied},
	}
	for _, tc := range cases {
		if got := status.Code(ToStatus(tc.err)); got != tc.code {
			t.Fatalf("%v: expected %v, got %v", tc.err, tc.code, got)
		}
	}
	if ToStatus(nil) != nil {
		t.Fatalf("expected nil for nil")
	}
}

func TestValidator(t *testing.T) {
	long := strings.Repeat("x", 11)
	v := NewValidator().
		Field("user_id", " ", Required).
		Field("vendor", long, MaxLength(10)).
		Field("path", "/tmp/a.pdf", Required, MaxLength(10))
	if len(v.Errors()) != 2 {
		t.Fatalf("expected 2 errors, got %v", v.Errors())
	}
	err := v.Error()
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if !strings.Contains(err.Error(), "user_id is required") {
		t.Fatalf("expected the field name in %q", err)
	}
	if status.Code(ToStatus(err)) != codes.InvalidArgument {
		t.Fatalf("expected validation errors to map to InvalidArgument")
	}
	if NewValidator().Field("user_id", "u1", Required).Error() != nil {
		t.Fatalf("expected no error for a valid field")
	}
}

func TestLoggerFromCarriesIDs(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(&buf, LoggingConfig{Level: "debug", Format: "json"})
	ctx := WithRunID(WithUserID(context.Background(), "u1"), "run-1")

	LoggerFrom(ctx, base).Debug("scan.window")
	out := buf.String()
	for _, want := range []string{`"run_id":"run-1"`, `"user_id":"u1"`, `"msg":"scan.window"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in %s", want, out)
		}
	}
	if parseLevel("WARNING") != slog.LevelWarn || parseLevel("") != slog.LevelInfo {
		t.Fatalf("unexpected level parsing")
	}
}
