package config

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration required by the API process.
// All values come from env, optionally preloaded from a .env file.
// No business logic should depend on raw environment variables.
type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Twilio    TwilioConfig
	Callbacks CallbacksConfig
	Detection DetectionConfig
	Scheduler SchedulerConfig
}

type AppConfig struct {
	Env  string
	Port int
	// LogLevel overrides the env default when set (debug, info, warn, error).
	LogLevel string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string

	// MaxOpenConns caps the pool; 0 keeps the pool default.
	MaxOpenConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int

	// Zero values keep the client defaults.
	PoolSize    int
	DialTimeout time.Duration
	IOTimeout   time.Duration
}

type AuthConfig struct {
	JWTSecret      string
	JWTIssuer      string
	JWTAudience    string
	AccessTokenTTL time.Duration
}

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string

	// APIBaseURL overrides https://api.twilio.com (tests, regional edges).
	APIBaseURL string
	// CallsPerSecond caps call creation requests; Twilio's default account CPS is 1.
	CallsPerSecond float64

	// ValidateSignatures enables X-Twilio-Signature checks on webhooks.
	ValidateSignatures bool
}

// CallbacksConfig describes how Twilio reaches this process.
//
// PublicBaseURL may be empty at startup; calls are then refused with a configuration error
// until it is set.
type CallbacksConfig struct {
	PublicBaseURL string
	MediaBaseURL  string
}

type DetectionConfig struct {
	// Mode is the default for API-created calls: enable, detect_message_end or disabled.
	Mode                 string
	TimeoutSeconds       int
	PostBeepDelaySeconds int
}

type SchedulerConfig struct {
	Timezone string
	// LockTTL bounds how long one firing may hold the per-call fire guard.
	LockTTL time.Duration
}

// Load reads configuration from the environment. A .env file in the working directory is
// loaded first when present; variables already set in the environment win.
func Load() (Config, error) {
	_ = godotenv.Load()

	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	c.App.LogLevel = strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL")))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))
	{
		n, err := optionalInt("DB_MAX_OPEN_CONNS")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.MaxOpenConns = n
	}

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")
	{
		n, err := optionalInt("REDIS_DB")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.DB = n
	}
	{
		n, err := optionalInt("REDIS_POOL_SIZE")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.PoolSize = n
	}
	c.Redis.DialTimeout = mustDuration("REDIS_DIAL_TIMEOUT")
	c.Redis.IOTimeout = mustDuration("REDIS_IO_TIMEOUT")

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate().
	c.Auth.AccessTokenTTL = mustDuration("JWT_ACCESS_TTL")

	c.Twilio.AccountSID = strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID"))
	c.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	c.Twilio.FromNumber = strings.TrimSpace(os.Getenv("TWILIO_FROM_NUMBER"))
	c.Twilio.APIBaseURL = strings.TrimSpace(os.Getenv("TWILIO_API_BASE_URL"))
	{
		f, err := optionalFloat("TWILIO_CALLS_PER_SECOND")
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		c.Twilio.CallsPerSecond = f
	}
	{
		b, err := optionalBool("TWILIO_VALIDATE_SIGNATURES")
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		c.Twilio.ValidateSignatures = b
	}

	c.Callbacks.PublicBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("PUBLIC_BASE_URL")), "/")
	c.Callbacks.MediaBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("MEDIA_BASE_URL")), "/")

	c.Detection.Mode = strings.TrimSpace(os.Getenv("AMD_MODE"))
	{
		n, err := optionalInt("AMD_TIMEOUT_SECONDS")
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		c.Detection.TimeoutSeconds = n
	}
	{
		n, err := optionalInt("POST_BEEP_DELAY_SECONDS")
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		c.Detection.PostBeepDelaySeconds = n
	}

	c.Scheduler.Timezone = strings.TrimSpace(os.Getenv("SCHEDULER_TIMEZONE"))
	c.Scheduler.LockTTL = mustDuration("SCHEDULER_LOCK_TTL")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks required values and fills optional ones with defaults.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}
	switch c.App.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error, got %q", c.App.LogLevel))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if c.DB.MaxOpenConns < 0 {
		errs = append(errs, fmt.Errorf("DB_MAX_OPEN_CONNS must not be negative, got %d", c.DB.MaxOpenConns))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}
	if c.Redis.DB < 0 || c.Redis.DB > 15 {
		errs = append(errs, fmt.Errorf("REDIS_DB must be between 0 and 15, got %d", c.Redis.DB))
	}
	if c.Redis.PoolSize < 0 {
		errs = append(errs, fmt.Errorf("REDIS_POOL_SIZE must not be negative, got %d", c.Redis.PoolSize))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}

	// Twilio credentials are checked again right before each call; here they only need to be
	// consistent so a half-configured account fails fast.
	if (c.Twilio.AccountSID == "") != (c.Twilio.AuthToken == "") {
		errs = append(errs, errors.New("TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN must be set together"))
	}
	if c.Twilio.ValidateSignatures && c.Twilio.AuthToken == "" {
		errs = append(errs, errors.New("TWILIO_VALIDATE_SIGNATURES requires TWILIO_AUTH_TOKEN"))
	}
	if c.Twilio.APIBaseURL == "" {
		c.Twilio.APIBaseURL = "https://api.twilio.com"
	}
	if c.Twilio.CallsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("TWILIO_CALLS_PER_SECOND must be positive, got %v", c.Twilio.CallsPerSecond))
	} else if c.Twilio.CallsPerSecond == 0 {
		c.Twilio.CallsPerSecond = 1
	}

	if c.Callbacks.PublicBaseURL != "" {
		if err := ValidatePublicBaseURL(c.Callbacks.PublicBaseURL); err != nil {
			errs = append(errs, fmt.Errorf("PUBLIC_BASE_URL: %w", err))
		}
	}
	if c.Callbacks.MediaBaseURL == "" {
		c.Callbacks.MediaBaseURL = c.Callbacks.PublicBaseURL
	}

	switch strings.ToLower(c.Detection.Mode) {
	case "":
		c.Detection.Mode = "detect_message_end"
	case "enable", "detect_message_end", "disabled":
		c.Detection.Mode = strings.ToLower(c.Detection.Mode)
	default:
		errs = append(errs, fmt.Errorf("AMD_MODE must be one of enable, detect_message_end, disabled, got %q", c.Detection.Mode))
	}
	if c.Detection.TimeoutSeconds == 0 {
		c.Detection.TimeoutSeconds = 30
	} else if c.Detection.TimeoutSeconds < 3 || c.Detection.TimeoutSeconds > 59 {
		// Twilio accepts MachineDetectionTimeout in [3, 59].
		errs = append(errs, fmt.Errorf("AMD_TIMEOUT_SECONDS must be between 3 and 59, got %d", c.Detection.TimeoutSeconds))
	}
	if c.Detection.PostBeepDelaySeconds < 0 {
		errs = append(errs, fmt.Errorf("POST_BEEP_DELAY_SECONDS must not be negative, got %d", c.Detection.PostBeepDelaySeconds))
	}

	if c.Scheduler.Timezone == "" {
		c.Scheduler.Timezone = "UTC"
	}
	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("SCHEDULER_TIMEZONE is invalid: %w", err))
	}
	if c.Scheduler.LockTTL <= 0 {
		c.Scheduler.LockTTL = 2 * time.Minute
	}

	return joinErrors(errs)
}

// ValidatePublicBaseURL reports whether u can be given to Twilio as a callback base:
// absolute http(s) and not naming this machine or a private, shared or link-local address.
// Hostnames are checked by name only; ResolvePublicBaseURL also checks what they resolve to.
func ValidatePublicBaseURL(u string) error {
	_, err := publicBaseHost(u)
	return err
}

// HostResolver is the subset of *net.Resolver used to check callback hosts.
type HostResolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// ResolvePublicBaseURL runs ValidatePublicBaseURL and, for a hostname, rejects it when it does
// not resolve or when any address it resolves to is unroutable.
func ResolvePublicBaseURL(ctx context.Context, r HostResolver, u string) error {
	host, err := publicBaseHost(u)
	if err != nil {
		return err
	}
	if r == nil || net.ParseIP(host) != nil {
		return nil
	}
	addrs, err := r.LookupIPAddr(ctx, host)
	if err != nil {
		return fmt.Errorf("host %q does not resolve: %w", host, err)
	}
	if len(addrs) == 0 {
		return fmt.Errorf("host %q does not resolve", host)
	}
	for _, a := range addrs {
		if unroutable(a.IP) {
			return fmt.Errorf("host %q resolves to %s, which the provider cannot reach", host, a.IP)
		}
	}
	return nil
}

func publicBaseHost(u string) (string, error) {
	if strings.TrimSpace(u) == "" {
		return "", errors.New("public base url is not configured")
	}
	parsed, err := url.Parse(u)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("scheme must be http or https, got %q", parsed.Scheme)
	}
	host := parsed.Hostname()
	if host == "" {
		return "", errors.New("url has no host")
	}
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return "", fmt.Errorf("host %q is not reachable by the provider", host)
	}
	if ip := net.ParseIP(host); ip != nil && unroutable(ip) {
		return "", fmt.Errorf("host %q is not reachable by the provider", host)
	}
	return host, nil
}

// sharedAddressSpace is the carrier-grade NAT range (RFC 6598).
var sharedAddressSpace = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

func unroutable(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsUnspecified() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() ||
		ip.IsMulticast() ||
		sharedAddressSpace.Contains(ip)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalFloat(key string) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number, got %q", key, v)
	}
	return f, nil
}

func optionalBool(key string) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", key, v)
	}
	return b, nil
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
