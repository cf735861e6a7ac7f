package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// AppConfig holds environment driven configuration values.
// Sensitive data should never have defaults inside code and must be provided via env files or the environment.
type AppConfig struct {
	AppPort            string
	TLSCertFile        string
	TLSKeyFile         string
	JWTSecret          string
	JWTExpiresHours    int
	RateLimitPerMinute int
	AllowedOrigins     []string
	AdminEmails        []string
	DatabaseURI        string
	DBHost             string
	DBPort             string
	DBUser             string
	DBPassword         string
	DBName             string
	// Gin framework configuration
	GinMode string
	GinPath string
	// SMTP for one-time codes
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPFromName string
	SMTPTLS      bool
	// Redis for caching, job leases and one-time codes
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string
	// Logging configuration
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
	// Incentive rules
	Incentive IncentiveConfig
}

// IncentiveConfig carries the point accounting rules and the job calendar.
// Times are "HH:MM" in Timezone; WeeklyDay is an English weekday name.
type IncentiveConfig struct {
	PointLimit              int
	DailyQuizCount          int
	RequiredCorrectForBonus int
	CorrectionWindowDays    int
	TokenPrefix             string
	MonthlyTokenQuota       int
	InactivityDays          int
	InactivityFloorMinutes  int
	MissedTaskLookbackDays  int
	Timezone                string
	InactivityScanAt        string
	MissedTaskAt            string
	WrongAnswerAt           string
	WeeklyDay               string
	WeeklyAt                string
	JobTimeoutSeconds       int
	SchedulerDisabled       bool
}

var cfg AppConfig
var loaded bool

// Load loads the application configuration. It should be called once during boot.
func Load() AppConfig {
	if loaded {
		return cfg
	}

	// Precedence: config/config.json -> .env -> defaults -> environment variable overrides
	if err := loadJSONConfig(filepath.Join("config", "config.json"), &cfg); err != nil {
		log.Fatalf("config: %v", err)
	}

	// .env is optional and only fills variables that are not already exported
	_ = godotenv.Load()

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set in environment variables")
	}

	loaded = true
	return cfg
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	if !loaded {
		return Load()
	}
	return cfg
}

// Set replaces the cached configuration. Used by tests and tools that build config in code.
func Set(c AppConfig) {
	applyDefaults(&c)
	cfg = c
	loaded = true
}

// fileConfig mirrors config/config.json: one object per section.
type fileConfig struct {
	App struct {
		AppPort            string
		TLSCertFile        string
		TLSKeyFile         string
		JWTSecret          string
		JWTExpiresHours    int
		RateLimitPerMinute int
		AllowedOrigins     []string
		AdminEmails        []string
	}
	Database struct {
		DatabaseURI string
		DBHost      string
		DBPort      string
		DBUser      string
		DBPassword  string
		DBName      string
	}
	Redis struct {
		RedisHost     string
		RedisPort     int
		RedisDB       int
		RedisPassword string
	}
	SMTP struct {
		SMTPHost     string
		SMTPPort     int
		SMTPUsername string
		SMTPPassword string
		SMTPFrom     string
		SMTPFromName string
		SMTPTLS      bool
	} `json:"smtp"`
	Log struct {
		Level      string
		Path       string
		GinMode    string
		GinPath    string
		MaxSizeMB  int
		MaxBackups int
		MaxAgeDays int
		Compress   bool
	}
	Incentive IncentiveConfig
}

// loadJSONConfig reads the sectioned JSON file into out. A missing file is not an error;
// malformed JSON and unknown keys are.
func loadJSONConfig(path string, out *AppConfig) error {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	var fc fileConfig
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&fc); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	a, d, r, m, l := fc.App, fc.Database, fc.Redis, fc.SMTP, fc.Log
	out.AppPort, out.TLSCertFile, out.TLSKeyFile = a.AppPort, a.TLSCertFile, a.TLSKeyFile
	out.JWTSecret, out.JWTExpiresHours = a.JWTSecret, a.JWTExpiresHours
	out.RateLimitPerMinute = a.RateLimitPerMinute
	out.AllowedOrigins, out.AdminEmails = a.AllowedOrigins, a.AdminEmails

	out.DatabaseURI = d.DatabaseURI
	out.DBHost, out.DBPort, out.DBUser, out.DBPassword, out.DBName = d.DBHost, d.DBPort, d.DBUser, d.DBPassword, d.DBName

	out.RedisHost, out.RedisPort, out.RedisDB, out.RedisPassword = r.RedisHost, r.RedisPort, r.RedisDB, r.RedisPassword

	out.SMTPHost, out.SMTPPort, out.SMTPUsername, out.SMTPPassword = m.SMTPHost, m.SMTPPort, m.SMTPUsername, m.SMTPPassword
	out.SMTPFrom, out.SMTPFromName, out.SMTPTLS = m.SMTPFrom, m.SMTPFromName, m.SMTPTLS

	out.LogLevel, out.LogPath, out.GinMode, out.GinPath = l.Level, l.Path, l.GinMode, l.GinPath
	out.LogMaxSizeMB, out.LogMaxBackups, out.LogMaxAgeDays, out.LogCompress = l.MaxSizeMB, l.MaxBackups, l.MaxAgeDays, l.Compress

	out.Incentive = fc.Incentive
	return nil
}

func applyDefaults(c *AppConfig) {
	if c.AppPort == "" {
		c.AppPort = "8080"
	}
	if c.JWTExpiresHours == 0 {
		c.JWTExpiresHours = 24
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 60
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.DBHost == "" {
		c.DBHost = "127.0.0.1"
	}
	if c.DBPort == "" {
		c.DBPort = "3306"
	}
	if c.DBName == "" {
		c.DBName = "incentive"
	}
	if c.RedisHost == "" {
		c.RedisHost = "127.0.0.1"
	}
	if c.RedisPort == 0 {
		c.RedisPort = 6379
	}
	if c.SMTPPort == 0 {
		c.SMTPPort = 587
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.GinPath == "" {
		c.GinPath = "logs/gin.log"
	}

	ic := &c.Incentive
	if ic.PointLimit == 0 {
		ic.PointLimit = 15
	}
	if ic.DailyQuizCount == 0 {
		ic.DailyQuizCount = 5
	}
	if ic.RequiredCorrectForBonus == 0 {
		ic.RequiredCorrectForBonus = 4
	}
	if ic.CorrectionWindowDays == 0 {
		ic.CorrectionWindowDays = 3
	}
	if ic.TokenPrefix == "" {
		ic.TokenPrefix = "GV"
	}
	if ic.MonthlyTokenQuota == 0 {
		ic.MonthlyTokenQuota = 3
	}
	if ic.InactivityDays == 0 {
		ic.InactivityDays = 3
	}
	if ic.InactivityFloorMinutes == 0 {
		ic.InactivityFloorMinutes = 10
	}
	if ic.MissedTaskLookbackDays == 0 {
		ic.MissedTaskLookbackDays = 7
	}
	if ic.Timezone == "" {
		ic.Timezone = "Local"
	}
	if ic.InactivityScanAt == "" {
		ic.InactivityScanAt = "00:30"
	}
	if ic.MissedTaskAt == "" {
		ic.MissedTaskAt = "22:00"
	}
	if ic.WrongAnswerAt == "" {
		ic.WrongAnswerAt = "21:00"
	}
	if ic.WeeklyDay == "" {
		ic.WeeklyDay = "Sunday"
	}
	if ic.WeeklyAt == "" {
		ic.WeeklyAt = "23:00"
	}
	if ic.JobTimeoutSeconds == 0 {
		ic.JobTimeoutSeconds = 600
	}
}

func applyEnvOverrides(c *AppConfig) {
	envString(&c.AppPort, "APP_PORT")
	envString(&c.TLSCertFile, "TLS_CERT_FILE")
	envString(&c.TLSKeyFile, "TLS_KEY_FILE")
	envString(&c.JWTSecret, "JWT_SECRET")
	envInt(&c.JWTExpiresHours, "JWT_EXPIRES_HOURS")
	envInt(&c.RateLimitPerMinute, "RATE_LIMIT_PER_MINUTE")
	envList(&c.AllowedOrigins, "ALLOWED_ORIGINS")
	envList(&c.AdminEmails, "ADMIN_EMAILS")

	envString(&c.DatabaseURI, "DATABASE_URI")
	envString(&c.DBHost, "DB_HOST")
	envString(&c.DBPort, "DB_PORT")
	envString(&c.DBUser, "DB_USER")
	envString(&c.DBPassword, "DB_PASSWORD")
	envString(&c.DBName, "DB_NAME")

	envString(&c.GinMode, "GIN_MODE")
	envString(&c.GinPath, "GIN_LOG_PATH")
	envString(&c.LogLevel, "LOG_LEVEL")
	envString(&c.LogPath, "LOG_PATH")

	envString(&c.SMTPHost, "SMTP_HOST")
	envInt(&c.SMTPPort, "SMTP_PORT")
	envString(&c.SMTPUsername, "SMTP_USERNAME")
	envString(&c.SMTPPassword, "SMTP_PASSWORD")
	envString(&c.SMTPFrom, "SMTP_FROM")
	envString(&c.SMTPFromName, "SMTP_FROM_NAME")
	envBool(&c.SMTPTLS, "SMTP_TLS")

	envString(&c.RedisHost, "REDIS_HOST")
	envInt(&c.RedisPort, "REDIS_PORT")
	envInt(&c.RedisDB, "REDIS_DB")
	envString(&c.RedisPassword, "REDIS_PASSWORD")

	ic := &c.Incentive
	envInt(&ic.PointLimit, "POINT_LIMIT")
	envInt(&ic.DailyQuizCount, "DAILY_QUIZ_COUNT")
	envInt(&ic.RequiredCorrectForBonus, "REQUIRED_CORRECT_FOR_BONUS")
	envInt(&ic.CorrectionWindowDays, "CORRECTION_WINDOW_DAYS")
	envString(&ic.TokenPrefix, "TOKEN_PREFIX")
	envInt(&ic.MonthlyTokenQuota, "MONTHLY_TOKEN_QUOTA")
	envInt(&ic.InactivityDays, "INACTIVITY_DAYS")
	envInt(&ic.InactivityFloorMinutes, "INACTIVITY_FLOOR_MINUTES")
	envInt(&ic.MissedTaskLookbackDays, "MISSED_TASK_LOOKBACK_DAYS")
	envString(&ic.Timezone, "INCENTIVE_TIMEZONE")
	envString(&ic.InactivityScanAt, "INACTIVITY_SCAN_AT")
	envString(&ic.MissedTaskAt, "MISSED_TASK_AT")
	envString(&ic.WrongAnswerAt, "WRONG_ANSWER_AT")
	envString(&ic.WeeklyDay, "WEEKLY_DAY")
	envString(&ic.WeeklyAt, "WEEKLY_AT")
	envInt(&ic.JobTimeoutSeconds, "JOB_TIMEOUT_SECONDS")
	envBool(&ic.SchedulerDisabled, "SCHEDULER_DISABLED")
}

func envString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// envInt aborts boot on a malformed number rather than running with a silent default.
func envInt(dst *int, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		log.Fatalf("invalid integer %s=%q: %v", key, v, err)
	}
	*dst = i
}

func envBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v == "1" || strings.EqualFold(v, "true")
	}
}

func envList(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}

// IsAdminEmail reports whether email is listed as an administrator.
func (c AppConfig) IsAdminEmail(email string) bool {
	for _, e := range c.AdminEmails {
		if strings.EqualFold(e, email) {
			return true
		}
	}
	return false
}
