package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	API          APIConfig
	Storage      StorageConfig
	Tokens       TokenConfig
	Uploads      UploadConfig
	PostProcess  PostProcessConfig
	Maintenance  MaintenanceConfig
	Cron         CronConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.API.SharedSecret) == "" {
		return nil, fmt.Errorf("%s is required", EnvAPISharedSecret)
	}
	return &cfg, nil
}

const EnvAPISharedSecret = "FILEDEPOT_API_SHARED_SECRET"

type AppConfig struct {
	Env          string `envconfig:"FILEDEPOT_APP_ENV" required:"true"`
	Port         string `envconfig:"FILEDEPOT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"FILEDEPOT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"FILEDEPOT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"FILEDEPOT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"FILEDEPOT_DB_DSN"`
	Driver string `envconfig:"FILEDEPOT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"FILEDEPOT_DB_HOST"`
	LegacyPort     int    `envconfig:"FILEDEPOT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"FILEDEPOT_DB_USER"`
	LegacyPassword string `envconfig:"FILEDEPOT_DB_PASSWORD"`
	LegacyName     string `envconfig:"FILEDEPOT_DB_NAME"`
	LegacySSLMode  string `envconfig:"FILEDEPOT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FILEDEPOT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FILEDEPOT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FILEDEPOT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FILEDEPOT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FILEDEPOT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"FILEDEPOT_REDIS_ADDR"`
	Password     string        `envconfig:"FILEDEPOT_REDIS_PASSWORD"`
	DB           int           `envconfig:"FILEDEPOT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FILEDEPOT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FILEDEPOT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FILEDEPOT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FILEDEPOT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FILEDEPOT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// APIConfig holds the server-to-server trust and cross-origin settings.
type APIConfig struct {
	SharedSecret string   `envconfig:"FILEDEPOT_API_SHARED_SECRET"`
	BaseURL      string   `envconfig:"FILEDEPOT_BASE_URL" default:"http://localhost:8080"`
	DomainList   []string `envconfig:"FILEDEPOT_DOMAIN_LIST"`
}

type StorageConfig struct {
	UploadRoot string `envconfig:"FILEDEPOT_UPLOAD_ROOT" required:"true"`
	TempDir    string `envconfig:"FILEDEPOT_TEMP_DIR" default:"tmp"`
}

type TokenConfig struct {
	SigningSecret string        `envconfig:"FILEDEPOT_TOKEN_SIGNING_SECRET" required:"true"`
	MaxAge        time.Duration `envconfig:"FILEDEPOT_TOKEN_MAX_AGE" default:"900s"`
}

type UploadConfig struct {
	TempUploadMaxAge    time.Duration `envconfig:"FILEDEPOT_TEMP_UPLOAD_MAX_AGE" default:"900s"`
	DeletedUploadMaxAge time.Duration `envconfig:"FILEDEPOT_DELETED_UPLOAD_MAX_AGE" default:"720h"`
	ExportExpirationAge time.Duration `envconfig:"FILEDEPOT_EXPORT_EXPIRATION_POLICY_AGE" default:"168h"`
	AllowedExtensions   []string      `envconfig:"FILEDEPOT_ALLOWED_EXTENSIONS" default:"pdf,png,jpg,jpeg,gif,webp,txt,csv,doc,docx,odt,xls,xlsx,ods"`
	UploadLimit         string        `envconfig:"FILEDEPOT_UPLOAD_LIMIT" default:"30/m"`
	MaxUploadMB         int           `envconfig:"FILEDEPOT_MAX_UPLOAD_MB" default:"200"`
}

type PostProcessConfig struct {
	ConverterBinary  string        `envconfig:"FILEDEPOT_OFFICE_CONVERTER_BINARY" default:"soffice"`
	ConverterTimeout time.Duration `envconfig:"FILEDEPOT_OFFICE_CONVERTER_TIMEOUT" default:"2m"`
	ScratchDir       string        `envconfig:"FILEDEPOT_POSTPROCESS_SCRATCH_DIR" default:"/tmp/filedepot"`
}

type MaintenanceConfig struct {
	SafetyMargin time.Duration `envconfig:"FILEDEPOT_ORPHAN_SAFETY_MARGIN" default:"1h"`
	BatchSize    int           `envconfig:"FILEDEPOT_MAINTENANCE_BATCH_SIZE" default:"10000"`
	WorkerCount  int           `envconfig:"FILEDEPOT_MAINTENANCE_WORKERS" default:"4"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"FILEDEPOT_CRON_INTERVAL" default:"1m"`
}

type FeatureFlagsConfig struct {
	AutoMigrate        bool `envconfig:"FILEDEPOT_AUTO_MIGRATE" default:"false"`
	MimetypeValidation bool `envconfig:"FILEDEPOT_ENABLE_MIMETYPE_VALIDATION" default:"false"`
}

// AllowedExtensionSet returns the lowercase allow-list as a set.
func (u UploadConfig) AllowedExtensionSet() map[string]struct{} {
	set := make(map[string]struct{}, len(u.AllowedExtensions))
	for _, ext := range u.AllowedExtensions {
		ext = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(ext, ".")))
		if ext == "" {
			continue
		}
		set[ext] = struct{}{}
	}
	return set
}

// UploadLimitRate parses the "count/period" rate string (e.g. "30/m").
func (u UploadConfig) UploadLimitRate() (int, time.Duration, error) {
	parts := strings.SplitN(strings.TrimSpace(u.UploadLimit), "/", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid rate %q, expected count/period", u.UploadLimit)
	}
	var count int
	if _, err := fmt.Sscanf(parts[0], "%d", &count); err != nil || count <= 0 {
		return 0, 0, fmt.Errorf("invalid rate count %q", parts[0])
	}
	var window time.Duration
	switch strings.ToLower(strings.TrimSpace(parts[1])) {
	case "s", "sec", "second":
		window = time.Second
	case "m", "min", "minute":
		window = time.Minute
	case "h", "hour":
		window = time.Hour
	default:
		return 0, 0, fmt.Errorf("invalid rate period %q", parts[1])
	}
	return count, window, nil
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
