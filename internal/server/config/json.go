package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/dlogr/internal/flagx"
	"github.com/dmitrijs2005/dlogr/internal/timex"
)

// JsonConfig mirrors Config for JSON decoding. Durations use timex.Duration
// so files may say "24h" as well as integer nanoseconds.
type JsonConfig struct {
	HTTPAddr              string         `json:"http_addr"`
	HealthAddrGRPC        string         `json:"health_addr_grpc"`
	ShutdownTimeout       timex.Duration `json:"shutdown_timeout"`
	DatabaseDSN           string         `json:"database_dsn"`
	RedisURL              string         `json:"redis_url"`
	RedisMaxConnections   int            `json:"redis_max_connections"`
	RedisTimeout          timex.Duration `json:"redis_timeout"`
	SecretKey             string         `json:"secret_key"`
	TokenValidityDuration timex.Duration `json:"token_validity_duration"`
	TokenDebugKeys        bool           `json:"token_debug_keys"`
	EmailBackend          string         `json:"email_backend"`
	SMTPHost              string         `json:"smtp_host"`
	SMTPPort              int            `json:"smtp_port"`
	SMTPUsername          string         `json:"smtp_username"`
	SMTPPassword          string         `json:"smtp_password"`
	DefaultFromEmail      string         `json:"default_from_email"`
	EmailSubjectPrefix    string         `json:"email_subject_prefix"`
	VerifyAccountURL      string         `json:"verify_account_url"`
	ResetPasswordURL      string         `json:"reset_password_url"`
	S3RootUser            string         `json:"s3_root_user"`
	S3RootPassword        string         `json:"s3_root_password"`
	S3Bucket              string         `json:"s3_bucket"`
	S3Region              string         `json:"s3_region"`
	S3BaseEndpoint        string         `json:"s3_base_endpoint"`
	LogBackend            string         `json:"log_backend"`
	LogLevel              string         `json:"log_level"`
	PageSize              int            `json:"page_size"`
	MaxPageSize           int            `json:"max_page_size"`
}

func toJson(c *Config) *JsonConfig {
	return &JsonConfig{
		HTTPAddr:              c.HTTPAddr,
		HealthAddrGRPC:        c.HealthAddrGRPC,
		ShutdownTimeout:       timex.Duration{Duration: c.ShutdownTimeout},
		DatabaseDSN:           c.DatabaseDSN,
		RedisURL:              c.RedisURL,
		RedisMaxConnections:   c.RedisMaxConnections,
		RedisTimeout:          timex.Duration{Duration: c.RedisTimeout},
		SecretKey:             c.SecretKey,
		TokenValidityDuration: timex.Duration{Duration: c.TokenValidityDuration},
		TokenDebugKeys:        c.TokenDebugKeys,
		EmailBackend:          c.EmailBackend,
		SMTPHost:              c.SMTPHost,
		SMTPPort:              c.SMTPPort,
		SMTPUsername:          c.SMTPUsername,
		SMTPPassword:          c.SMTPPassword,
		DefaultFromEmail:      c.DefaultFromEmail,
		EmailSubjectPrefix:    c.EmailSubjectPrefix,
		VerifyAccountURL:      c.VerifyAccountURL,
		ResetPasswordURL:      c.ResetPasswordURL,
		S3RootUser:            c.S3RootUser,
		S3RootPassword:        c.S3RootPassword,
		S3Bucket:              c.S3Bucket,
		S3Region:              c.S3Region,
		S3BaseEndpoint:        c.S3BaseEndpoint,
		LogBackend:            c.LogBackend,
		LogLevel:              c.LogLevel,
		PageSize:              c.PageSize,
		MaxPageSize:           c.MaxPageSize,
	}
}

func (j *JsonConfig) apply(c *Config) {
	c.HTTPAddr = j.HTTPAddr
	c.HealthAddrGRPC = j.HealthAddrGRPC
	c.ShutdownTimeout = j.ShutdownTimeout.Duration
	c.DatabaseDSN = j.DatabaseDSN
	c.RedisURL = j.RedisURL
	c.RedisMaxConnections = j.RedisMaxConnections
	c.RedisTimeout = j.RedisTimeout.Duration
	c.SecretKey = j.SecretKey
	c.TokenValidityDuration = j.TokenValidityDuration.Duration
	c.TokenDebugKeys = j.TokenDebugKeys
	c.EmailBackend = j.EmailBackend
	c.SMTPHost = j.SMTPHost
	c.SMTPPort = j.SMTPPort
	c.SMTPUsername = j.SMTPUsername
	c.SMTPPassword = j.SMTPPassword
	c.DefaultFromEmail = j.DefaultFromEmail
	c.EmailSubjectPrefix = j.EmailSubjectPrefix
	c.VerifyAccountURL = j.VerifyAccountURL
	c.ResetPasswordURL = j.ResetPasswordURL
	c.S3RootUser = j.S3RootUser
	c.S3RootPassword = j.S3RootPassword
	c.S3Bucket = j.S3Bucket
	c.S3Region = j.S3Region
	c.S3BaseEndpoint = j.S3BaseEndpoint
	c.LogBackend = j.LogBackend
	c.LogLevel = j.LogLevel
	c.PageSize = j.PageSize
	c.MaxPageSize = j.MaxPageSize
}

// parseJson overlays config with the JSON file named by -c/-config (or
// $DLOGR_CONFIG). Keys missing from the file keep their current values.
// An unreadable file or invalid JSON panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := toJson(config)
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}
	c.apply(config)
}
