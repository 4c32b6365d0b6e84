package config // package config loads application configuration from environment variables

import (
	"encoding/json" // json decodes the TENANTS credential list
	"log"           // log is used to report configuration errors and halt execution
	"os"            // os provides access to environment variables
	"strconv"       // strconv converts strings to other types
)

// TenantCredential is one provider account credential as supplied through
// the TENANTS environment variable.  The secret is encrypted before it is
// persisted; it only exists in clear text inside this struct at startup.
//
// Fields:
//  Label        – operator-facing name for the account.
//  ClientID     – OAuth client id issued by the provider.
//  ClientSecret – OAuth client secret issued by the provider.
//  Scope        – optional scope requested during the token exchange.
//  Audience     – optional audience requested during the token exchange.
type TenantCredential struct {
	Label        string `json:"label"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Scope        string `json:"scope,omitempty"`
	Audience     string `json:"audience,omitempty"`
}

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  The types reflect how the values are used in
// the application: strings for identifiers and secrets, ints for counts and
// durations expressed in their natural unit.
type Config struct {
	Env              string // application environment (e.g. "dev", "prod")
	Port             string // HTTP port to listen on
	DBUser           string // database username
	DBPass           string // database password (optional)
	DBHost           string // database host address
	DBPort           string // database port number
	DBName           string // database name
	JWTSecret        string // secret used to sign JWTs
	AccessTTLMin     int    // access token time‑to‑live in minutes
	RefreshTTLDays   int    // refresh token time‑to‑live in days
	BcryptCost       int    // bcrypt cost for password hashing
	VaultKeyHex      string // 64 hex chars, AES-256 key for the credential vault
	Tenants          []TenantCredential
	ProviderBaseURL  string // provider REST base, e.g. https://supersim.example.com
	ProviderTokenURL string // OAuth token endpoint
	FleetConcurrency int    // parallel fleets during SIM sync
	DispatchLimit    int    // dispatch calls per caller per window
	DispatchWindowS  int    // dispatch rate window in seconds
	RabbitURL        string // AMQP connection string (empty disables the broker)
	LogLevel         string // zap level: debug/info/warn/error
	LogFormat        string // "json" or "console"
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
	return Config{
		Env:              must("APP_ENV"),      // environment (dev/test/prod)
		Port:             must("APP_PORT"),     // port to bind the HTTP server
		DBUser:           must("DB_USER"),      // database user
		DBPass:           os.Getenv("DB_PASS"), // database password (empty allowed)
		DBHost:           must("DB_HOST"),      // database host
		DBPort:           must("DB_PORT"),      // database port
		DBName:           must("DB_NAME"),      // database name
		JWTSecret:        must("JWT_SECRET"),   // secret used for signing JWTs
		AccessTTLMin:     mustInt("ACCESS_TOKEN_TTL_MIN"),   // TTL for access tokens in minutes
		RefreshTTLDays:   mustInt("REFRESH_TOKEN_TTL_DAYS"), // TTL for refresh tokens in days
		BcryptCost:       mustInt("BCRYPT_COST"),            // bcrypt cost factor
		VaultKeyHex:      must("VAULT_KEY"),                 // hex-encoded AES-256 key
		Tenants:          parseTenants(os.Getenv("TENANTS")),
		ProviderBaseURL:  must("PROVIDER_BASE_URL"),
		ProviderTokenURL: must("PROVIDER_TOKEN_URL"),
		FleetConcurrency: envInt("SYNC_FLEET_CONCURRENCY", 4),
		DispatchLimit:    envInt("DISPATCH_RATE_LIMIT", 10),
		DispatchWindowS:  envInt("DISPATCH_RATE_WINDOW_S", 60),
		RabbitURL:        os.Getenv("RABBITMQ_URL"), // empty disables dispatch events
		LogLevel:         envStr("LOG_LEVEL", "info"),
		LogFormat:        envStr("LOG_FORMAT", "json"),
	}
}

// parseTenants decodes the TENANTS environment variable, a JSON array of
// provider credentials.  An empty variable yields an empty slice; invalid
// JSON or a credential without a client id is fatal, because a silently
// dropped tenant would never sync.
func parseTenants(raw string) []TenantCredential {
	if raw == "" {
		return nil
	}
	var out []TenantCredential
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		log.Fatalf("invalid TENANTS json: %v", err)
	}
	for i, t := range out {
		if t.ClientID == "" || t.ClientSecret == "" {
			log.Fatalf("TENANTS[%d]: client_id and client_secret are required", i)
		}
		if t.Label == "" {
			out[i].Label = t.ClientID
		}
	}
	return out
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// mustInt is like must() but converts the retrieved string into an integer.
// If conversion fails, the application logs a fatal error and exits.
func mustInt(key string) int {
	s := must(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}
