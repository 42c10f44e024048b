package config

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"
)

func validLocal() Config {
	return Config{
		App:   AppConfig{Env: "local", Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "voice"},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret"},
	}
}

func TestLoad_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validLocal()
	c.App.Env = "production"
	c.Auth.JWTIssuer = "iss"
	c.Auth.JWTAudience = "aud"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := validLocal()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.Auth.AccessTokenTTL != 15*time.Minute {
		t.Fatalf("unexpected access ttl %v", c.Auth.AccessTokenTTL)
	}
	if c.Detection.Mode != "detect_message_end" || c.Detection.TimeoutSeconds != 30 {
		t.Fatalf("unexpected detection defaults %+v", c.Detection)
	}
	if c.Scheduler.Timezone != "UTC" || c.Twilio.CallsPerSecond != 1 {
		t.Fatalf("unexpected defaults %+v %+v", c.Scheduler, c.Twilio)
	}
}

func TestValidate_EmptyPublicBaseURLIsAllowedAtStartup(t *testing.T) {
	c := validLocal()
	c.Callbacks.PublicBaseURL = ""
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidate_RejectsBadValues(t *testing.T) {
	c := validLocal()
	c.Callbacks.PublicBaseURL = "http://127.0.0.1:8080"
	c.Detection.Mode = "sometimes"
	c.Scheduler.Timezone = "Mars/Olympus"
	c.Twilio.AccountSID = "AC123"
	c.App.LogLevel = "chatty"
	c.Redis.DB = 16
	c.Redis.PoolSize = -1

	err := c.Validate()
	if err == nil {
		t.Fatalf("expected errors")
	}
	for _, want := range []string{"PUBLIC_BASE_URL", "AMD_MODE", "SCHEDULER_TIMEZONE", "TWILIO_AUTH_TOKEN", "LOG_LEVEL", "REDIS_DB", "REDIS_POOL_SIZE"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
}

func TestValidatePublicBaseURL(t *testing.T) {
	good := []string{"https://voice.example.com", "http://203.0.113.7:8080/base"}
	for _, u := range good {
		if err := ValidatePublicBaseURL(u); err != nil {
			t.Fatalf("%s: unexpected error %v", u, err)
		}
	}
	bad := []string{
		"",
		"ftp://example.com",
		"/relative/path",
		"http://localhost:8080",
		"http://api.localhost",
		"http://127.0.0.1",
		"http://[::1]:9000",
		"http://0.0.0.0",
		"http://169.254.10.10",
		"http://10.0.0.5:8080",
		"http://192.168.1.20",
		"http://172.16.0.9",
		"http://100.64.3.4",
		"http://[fd00::1]",
		"http://[fe80::1]",
	}
	for _, u := range bad {
		if err := ValidatePublicBaseURL(u); err == nil {
			t.Fatalf("%q: expected error", u)
		}
	}
}

func TestLoad_ReadsEnv(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_PORT", "9090")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("DB_USER", "u")
	t.Setenv("DB_NAME", "n")
	t.Setenv("REDIS_HOST", "redis")
	t.Setenv("REDIS_PORT", "6379")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("REDIS_POOL_SIZE", "8")
	t.Setenv("REDIS_DIAL_TIMEOUT", "750ms")
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("TWILIO_ACCOUNT_SID", "AC1")
	t.Setenv("TWILIO_AUTH_TOKEN", "tok")
	t.Setenv("TWILIO_FROM_NUMBER", "+15005550006")
	t.Setenv("TWILIO_CALLS_PER_SECOND", "5")
	t.Setenv("PUBLIC_BASE_URL", "https://voice.example.com/")
	t.Setenv("AMD_MODE", "enable")
	t.Setenv("POST_BEEP_DELAY_SECONDS", "2")
	t.Setenv("SCHEDULER_TIMEZONE", "Europe/Berlin")

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.HTTPAddr() != ":9090" || c.RedisAddr() != "redis:6379" {
		t.Fatalf("unexpected addrs %s %s", c.HTTPAddr(), c.RedisAddr())
	}
	if c.Redis.DB != 2 || c.Redis.PoolSize != 8 || c.Redis.DialTimeout != 750*time.Millisecond || c.Redis.IOTimeout != 0 {
		t.Fatalf("unexpected redis config %+v", c.Redis)
	}
	if c.Callbacks.PublicBaseURL != "https://voice.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", c.Callbacks.PublicBaseURL)
	}
	if c.Callbacks.MediaBaseURL != c.Callbacks.PublicBaseURL {
		t.Fatalf("expected media base to default to public base, got %q", c.Callbacks.MediaBaseURL)
	}
	if c.Twilio.CallsPerSecond != 5 || c.Detection.Mode != "enable" || c.Detection.PostBeepDelaySeconds != 2 {
		t.Fatalf("unexpected values %+v %+v", c.Twilio, c.Detection)
	}
}

func TestLoad_ParseErrors(t *testing.T) {
	t.Setenv("APP_PORT", "eighty")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("REDIS_PORT", "6379")
	t.Setenv("TWILIO_CALLS_PER_SECOND", "fast")

	_, err := Load()
	if err == nil {
		t.Fatalf("expected parse errors")
	}
	if !strings.Contains(err.Error(), "APP_PORT") || !strings.Contains(err.Error(), "TWILIO_CALLS_PER_SECOND") {
		t.Fatalf("unexpected error: %v", err)
	}
}

type stubResolver map[string][]string

func (r stubResolver) LookupIPAddr(_ context.Context, host string) ([]net.IPAddr, error) {
	ips, ok := r[host]
	if !ok {
		return nil, errors.New("no such host")
	}
	out := make([]net.IPAddr, 0, len(ips))
	for _, ip := range ips {
		out = append(out, net.IPAddr{IP: net.ParseIP(ip)})
	}
	return out, nil
}

func TestResolvePublicBaseURL(t *testing.T) {
	r := stubResolver{
		"voice.example.com":    {"203.0.113.7"},
		"internal.example.com": {"10.1.2.3"},
		"mixed.example.com":    {"203.0.113.8", "fd12::5"},
		"cgnat.example.com":    {"100.100.1.1"},
	}
	ctx := context.Background()

	if err := ResolvePublicBaseURL(ctx, r, "https://voice.example.com"); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if err := ResolvePublicBaseURL(ctx, r, "https://203.0.113.9"); err != nil {
		t.Fatalf("literal public ip must not need resolution: %v", err)
	}
	for _, u := range []string{
		"https://internal.example.com",
		"https://mixed.example.com",
		"https://cgnat.example.com",
		"https://unknown.example.com",
		"http://192.168.0.10",
	} {
		if err := ResolvePublicBaseURL(ctx, r, u); err == nil {
			t.Fatalf("%q: expected error", u)
		}
	}
	if err := ResolvePublicBaseURL(ctx, nil, "https://internal.example.com"); err != nil {
		t.Fatalf("nil resolver checks names only, got %v", err)
	}
}
