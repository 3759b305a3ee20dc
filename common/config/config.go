package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

func getEnv(key, defaultValue string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	return value
}

func loadEnvString(key string, result *string) {
	s, ok := os.LookupEnv(key)

	if !ok {
		return
	}
	*result = s
}

func loadEnvUint(key string, result *uint) {
	s, ok := os.LookupEnv(key)

	if !ok {
		return
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return
	}
	*result = uint(n)
}

func loadEnvInt(key string, result *int) {
	s, ok := os.LookupEnv(key)

	if !ok {
		return
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return
	}
	*result = n
}

func loadEnvBool(key string, result *bool) {
	s, ok := os.LookupEnv(key)

	if !ok {
		return
	}
	*result = s == "true" || s == "1"
}

func loadEnvDuration(key string, result *time.Duration) {
	s, ok := os.LookupEnv(key)

	if !ok {
		return
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return
	}
	*result = d
}

func loadEnvList(key string, result *[]string) {
	s, ok := os.LookupEnv(key)

	if !ok || s == "" {
		return
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	*result = parts
}

/* Configuration */

/* PgSQL Configuration */
type pgSqlConfig struct {
	Host     string `json:"host"`
	Port     uint   `json:"port"`
	Database string `json:"database"`
	SslMode  string `json:"ssl_mode"`
	User     string `json:"user"`
	Password string `json:"password"`
}

func (p pgSqlConfig) ConnStr() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s database=%s sslmode=%s", p.Host, p.Port, p.User, p.Password, p.Database, p.SslMode)
}

func defaultPgSql() pgSqlConfig {
	return pgSqlConfig{
		Host:     "localhost",
		Port:     5432,
		Database: "debtwatch",
		User:     "",
		Password: "",
		SslMode:  "disable",
	}
}

func (p *pgSqlConfig) loadFromEnv() {
	loadEnvString("POSTGRES_HOST", &p.Host)
	loadEnvUint("POSTGRES_PORT", &p.Port)
	loadEnvString("POSTGRES_DB_NAME", &p.Database)
	loadEnvString("POSTGRES_SSLMODE", &p.SslMode)
	loadEnvString("POSTGRES_USERNAME", &p.User)
	loadEnvString("POSTGRES_PASSWORD", &p.Password)
}

/* Listen Configuration */

type listenConfig struct {
	Host string `json:"host"`
	Port uint   `json:"port"`
}

func (l listenConfig) Addr() string {
	return fmt.Sprintf("%s:%d", l.Host, l.Port)
}

func defaultListenConfig() listenConfig {
	return listenConfig{
		Host: "127.0.0.1",
		Port: 8080,
	}
}

func (l *listenConfig) loadFromEnv() {
	loadEnvString("LISTEN_HOST", &l.Host)
	loadEnvUint("LISTEN_PORT", &l.Port)
}

type natsConfig struct {
	Host             string
	Port             uint
	Username         string
	Password         string
	JetStreamEnabled bool
}

func (c *natsConfig) loadFromEnv() {
	c.Host = getEnv("NATS_HOST", "localhost")

	if portStr := getEnv("NATS_PORT", "4222"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil {
			c.Port = uint(port)
		} else {
			c.Port = 4222
		}
	} else {
		c.Port = 4222
	}

	c.Username = getEnv("NATS_USER", "")
	c.Password = getEnv("NATS_PASSWORD", "")
	c.JetStreamEnabled = getEnv("NATS_JETSTREAM_ENABLED", "true") == "true"
}

func (c *natsConfig) URL() string {
	return fmt.Sprintf("nats://%s:%d", c.Host, c.Port)
}

func defaultNatsConfig() natsConfig {
	return natsConfig{
		Host:             "localhost",
		Port:             4222,
		Username:         "",
		Password:         "",
		JetStreamEnabled: true,
	}
}

type securityConfig struct {
	BackendApiKey string
	ServerSalt    string
}

func (s *securityConfig) loadFromEnv() {
	s.BackendApiKey = getEnv("BACKEND_API_KEY", "")
	s.ServerSalt = getEnv("SERVER_SALT", "")
}

func defaultSecurityConfig() securityConfig {
	return securityConfig{
		BackendApiKey: "",
		ServerSalt:    "",
	}
}

type redisConfig struct {
	Host     string `json:"host"`
	Port     uint   `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

func (r *redisConfig) loadFromEnv() {
	loadEnvString("REDIS_HOST", &r.Host)
	loadEnvUint("REDIS_PORT", &r.Port)
	loadEnvString("REDIS_PASSWORD", &r.Password)
	loadEnvInt("REDIS_DB", &r.DB)
}

func defaultRedisConfig() redisConfig {
	return redisConfig{
		Host:     "localhost",
		Port:     6379,
		Password: "",
		DB:       0,
	}
}

type GCSConfig struct {
	ProjectID       string
	CredentialsFile string
	Bucket          string
}

func (g *GCSConfig) loadFromEnv() {
	g.ProjectID = getEnv("GCS_PROJECT_ID", "")
	g.CredentialsFile = getEnv("GCS_CREDENTIALS_FILE", "")
	g.Bucket = getEnv("GCS_STORAGE_BUCKET", "")
}

func defaultGcsConfig() GCSConfig {
	return GCSConfig{
		ProjectID:       "",
		CredentialsFile: "",
		Bucket:          "",
	}
}

/* Browser automation configuration */

type BrowserConfig struct {
	// ControlURL points at a remote devtools endpoint (e.g. a pre-solved
	// unblocker session). Empty means connect to a locally launched browser.
	ControlURL  string
	UserAgent   string
	DownloadDir string
}

func (b *BrowserConfig) loadFromEnv() {
	loadEnvString("BROWSER_CONTROL_URL", &b.ControlURL)
	loadEnvString("BROWSER_USER_AGENT", &b.UserAgent)
	loadEnvString("BROWSER_DOWNLOAD_DIR", &b.DownloadDir)
}

func defaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		ControlURL:  "",
		UserAgent:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		DownloadDir: "./darfs",
	}
}

/* PGFN portal configuration */

type PgfnConfig struct {
	BaseURL string
	// JSONHints is the set of URL fragments used to recognize the portal's
	// data-endpoint responses among all captured traffic.
	JSONHints   []string
	MaxAttempts int
	WaitLong    time.Duration
	WaitMed     time.Duration
	WaitShort   time.Duration
}

func (p *PgfnConfig) loadFromEnv() {
	loadEnvString("PGFN_BASE_URL", &p.BaseURL)
	loadEnvList("PGFN_JSON_HINTS", &p.JSONHints)
	loadEnvInt("PGFN_MAX_ATTEMPTS", &p.MaxAttempts)
	loadEnvDuration("PGFN_WAIT_LONG", &p.WaitLong)
	loadEnvDuration("PGFN_WAIT_MED", &p.WaitMed)
	loadEnvDuration("PGFN_WAIT_SHORT", &p.WaitShort)
}

func defaultPgfnConfig() PgfnConfig {
	return PgfnConfig{
		BaseURL:     "https://www.listadevedores.pgfn.gov.br",
		JSONHints:   []string{"/api/devedores", "/api", "/consulta", "/devedores"},
		MaxAttempts: 3,
		WaitLong:    30 * time.Second,
		WaitMed:     10 * time.Second,
		WaitShort:   4 * time.Second,
	}
}

/* Regularize portal configuration */

type RegularizeConfig struct {
	DocURL          string
	DownloadTimeout time.Duration
}

func (r *RegularizeConfig) loadFromEnv() {
	loadEnvString("REGULARIZE_DOC_URL", &r.DocURL)
	loadEnvDuration("REGULARIZE_DOWNLOAD_TIMEOUT", &r.DownloadTimeout)
}

func defaultRegularizeConfig() RegularizeConfig {
	return RegularizeConfig{
		DocURL:          "https://www.regularize.pgfn.gov.br/docArrecadacao",
		DownloadTimeout: 30 * time.Second,
	}
}

/* Captcha solver configuration */

type CaptchaConfig struct {
	APIKey string
	// ExtraAttempts is how many additional solve calls are made after the
	// first one fails or returns empty.
	ExtraAttempts int
	SolveTimeout  time.Duration
	// AbortOnMissingKey aborts the run when a challenge is present but no
	// site-key can be located. Default is to proceed and let the next
	// interaction decide whether the session is usable.
	AbortOnMissingKey bool
}

func (c *CaptchaConfig) loadFromEnv() {
	loadEnvString("CAPTCHA_API_KEY", &c.APIKey)
	loadEnvInt("CAPTCHA_EXTRA_ATTEMPTS", &c.ExtraAttempts)
	loadEnvDuration("CAPTCHA_SOLVE_TIMEOUT", &c.SolveTimeout)
	loadEnvBool("CAPTCHA_ABORT_ON_MISSING_KEY", &c.AbortOnMissingKey)
}

func defaultCaptchaConfig() CaptchaConfig {
	return CaptchaConfig{
		APIKey:            "",
		ExtraAttempts:     2,
		SolveTimeout:      90 * time.Second,
		AbortOnMissingKey: false,
	}
}

type Config struct {
	Listen     listenConfig
	PgSql      pgSqlConfig
	Security   securityConfig
	Nats       natsConfig
	Redis      redisConfig
	GCS        GCSConfig
	Browser    BrowserConfig
	Pgfn       PgfnConfig
	Regularize RegularizeConfig
	Captcha    CaptchaConfig
}

func (c *Config) LoadFromEnv() {
	c.Listen.loadFromEnv()
	c.PgSql.loadFromEnv()
	c.Security.loadFromEnv()
	c.Nats.loadFromEnv()
	c.Redis.loadFromEnv()
	c.GCS.loadFromEnv()
	c.Browser.loadFromEnv()
	c.Pgfn.loadFromEnv()
	c.Regularize.loadFromEnv()
	c.Captcha.loadFromEnv()
}

func DefaultConfig() Config {
	return Config{
		Listen:     defaultListenConfig(),
		PgSql:      defaultPgSql(),
		Security:   defaultSecurityConfig(),
		Nats:       defaultNatsConfig(),
		Redis:      defaultRedisConfig(),
		GCS:        defaultGcsConfig(),
		Browser:    defaultBrowserConfig(),
		Pgfn:       defaultPgfnConfig(),
		Regularize: defaultRegularizeConfig(),
		Captcha:    defaultCaptchaConfig(),
	}
}
