package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config agrupa la configuración de la aplicación (lectura vía Viper desde
// env y opcionalmente archivo).
type Config struct {
	App      AppConfig
	DB       DBConfig
	JWT      JWTConfig
	HTTP     HTTPConfig
	Registry RegistryConfig
	Sync     SyncConfig
	Cache    CacheConfig
}

// AppConfig configuración general de la aplicación.
type AppConfig struct {
	Env  string // development, staging, production
	Name string
}

// RegistryConfig credenciales y endpoints del registro de facturación
// electrónica. El timeout de red se acota a un rango sano (30s–5min).
type RegistryConfig struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	Timeout      time.Duration
}

// SyncConfig parámetros del motor de sincronización. Los umbrales de parada
// temprana son heurísticos afinados en operación, por eso quedan expuestos.
type SyncConfig struct {
	PageSize             int
	MaxPages             int
	MaxRetries           int
	MaxConsecutiveErrors int
	StaleRunThreshold    int
	StalePageMin         int
	FallbackLimit        int
	BatchSize            int
	ChunkSize            int
	WriteRetries         int
	PollIntervalSeconds  int
	PollInteractiveBound int
	PollBackgroundBound  int
}

// CacheConfig parámetros del cache tipado en memoria.
type CacheConfig struct {
	MaxEntries        int
	SweepIntervalMins int
}

// DBConfig configuración de PostgreSQL. Si DatabaseURL no está vacío, se usa
// como connection string completo.
type DBConfig struct {
	DatabaseURL string
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	Migrations  string // directorio de migraciones
}

// ConnectionString devuelve el DSN a usar: DATABASE_URL si está definido, si
// no el construido con DSN().
func (c DBConfig) ConnectionString() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return c.DSN()
}

// DSN devuelve el connection string para PostgreSQL con URL encoding para
// caracteres especiales en la contraseña.
func (c DBConfig) DSN() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: fmt.Sprintf("sslmode=%s", c.SSLMode),
	}
	return u.String()
}

// JWTConfig configuración de JWT para el middleware de sesión.
type JWTConfig struct {
	Secret     string
	Expiration int // minutos
	Issuer     string
}

// HTTPConfig configuración del servidor HTTP.
type HTTPConfig struct {
	Host string
	Port int
}

// Addr devuelve la dirección de escucha (host:port).
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load lee la configuración desde variables de entorno (y opcionalmente desde
// archivo). Las env vars tienen prioridad.
func Load() (*Config, error) {
	v := viper.New()

	// Opcional: archivo de configuración (.env o config.env)
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // ignoramos error si no existe

	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	_ = v.ReadInConfig() // ignoramos error si no existe

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		App: AppConfig{
			Env:  getString(v, "APP_ENV", "development"),
			Name: getString(v, "APP_NAME", "facturacion-sync"),
		},
		DB: DBConfig{
			DatabaseURL: getString(v, "DATABASE_URL", ""),
			Host:        getString(v, "DB_HOST", "localhost"),
			Port:        getInt(v, "DB_PORT", 5432),
			User:        getString(v, "DB_USER", "postgres"),
			Password:    getString(v, "DB_PASSWORD", ""),
			DBName:      getString(v, "DB_NAME", "facturacion_sync"),
			SSLMode:     getString(v, "DB_SSLMODE", "disable"),
			Migrations:  getString(v, "DB_MIGRATIONS", "migrations"),
		},
		JWT: JWTConfig{
			Secret:     getString(v, "JWT_SECRET", ""),
			Expiration: getInt(v, "JWT_EXPIRATION_MINUTES", 60),
			Issuer:     getString(v, "JWT_ISSUER", "facturacion-sync"),
		},
		HTTP: HTTPConfig{
			Host: getString(v, "HTTP_HOST", "0.0.0.0"),
			Port: getInt(v, "HTTP_PORT", 8080),
		},
		Registry: RegistryConfig{
			BaseURL:      getString(v, "REGISTRY_BASE_URL", ""),
			TokenURL:     getString(v, "REGISTRY_TOKEN_URL", ""),
			ClientID:     getString(v, "REGISTRY_CLIENT_ID", ""),
			ClientSecret: getString(v, "REGISTRY_CLIENT_SECRET", ""),
			Scopes:       splitNonEmpty(getString(v, "REGISTRY_SCOPES", "")),
			Timeout:      boundedTimeout(getInt(v, "REGISTRY_TIMEOUT_SECONDS", 60)),
		},
		Sync: SyncConfig{
			PageSize:             getInt(v, "SYNC_PAGE_SIZE", 100),
			MaxPages:             getInt(v, "SYNC_MAX_PAGES", 20),
			MaxRetries:           getInt(v, "SYNC_MAX_RETRIES", 3),
			MaxConsecutiveErrors: getInt(v, "SYNC_MAX_CONSECUTIVE_ERRORS", 3),
			StaleRunThreshold:    getInt(v, "SYNC_STALE_RUN_THRESHOLD", 10),
			StalePageMin:         getInt(v, "SYNC_STALE_PAGE_MIN", 5),
			FallbackLimit:        getInt(v, "SYNC_FALLBACK_LIMIT", 1000),
			BatchSize:            getInt(v, "SYNC_BATCH_SIZE", 100),
			ChunkSize:            getInt(v, "SYNC_CHUNK_SIZE", 5),
			WriteRetries:         getInt(v, "SYNC_WRITE_RETRIES", 5),
			PollIntervalSeconds:  getInt(v, "SYNC_POLL_INTERVAL_SECONDS", 5),
			PollInteractiveBound: getInt(v, "SYNC_POLL_INTERACTIVE_BOUND", 5),
			PollBackgroundBound:  getInt(v, "SYNC_POLL_BACKGROUND_BOUND", 10),
		},
		Cache: CacheConfig{
			MaxEntries:        getInt(v, "CACHE_MAX_ENTRIES", 1000),
			SweepIntervalMins: getInt(v, "CACHE_SWEEP_INTERVAL_MINUTES", 5),
		},
	}

	if cfg.Registry.BaseURL == "" {
		return nil, fmt.Errorf("config: REGISTRY_BASE_URL es obligatorio")
	}

	return cfg, nil
}

// boundedTimeout acota el timeout del registro al rango 30s–5min.
func boundedTimeout(seconds int) time.Duration {
	if seconds < 30 {
		seconds = 30
	}
	if seconds > 300 {
		seconds = 300
	}
	return time.Duration(seconds) * time.Second
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getString(v *viper.Viper, key, def string) string {
	if v.IsSet(key) {
		return v.GetString(key)
	}
	return def
}

func getInt(v *viper.Viper, key string, def int) int {
	if v.IsSet(key) {
		switch v.Get(key).(type) {
		case int:
			return v.GetInt(key)
		case string:
			n, _ := strconv.Atoi(v.GetString(key))
			return n
		default:
			return v.GetInt(key)
		}
	}
	return def
}
