package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/storefront/internal/flagx"
	"github.com/dmitrijs2005/storefront/internal/timex"
)

// JsonConfig is the on-disk shape of the optional JSON config file. Interval
// fields use timex.Duration so both "10m" and integer nanoseconds parse.
type JsonConfig struct {
	Environment      string `json:"environment"`
	EndpointAddrHTTP string `json:"endpoint_addr_http"`
	DatabaseDSN      string `json:"database_dsn"`

	SecretKey                    string         `json:"secret_key"`
	TokenIssuer                  string         `json:"token_issuer"`
	TokenAudience                string         `json:"token_audience"`
	LoginTokenValidityDuration   timex.Duration `json:"login_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`

	OtpValidityDuration timex.Duration `json:"otp_validity_duration"`
	OtpMaxAttempts      int            `json:"otp_max_attempts"`

	SMTPHost        string `json:"smtp_host"`
	SMTPPort        int    `json:"smtp_port"`
	SMTPUsername    string `json:"smtp_username"`
	SMTPPassword    string `json:"smtp_password"`
	SMTPSenderEmail string `json:"smtp_sender_email"`
	SMTPSenderName  string `json:"smtp_sender_name"`
	SMTPEncryption  string `json:"smtp_encryption"`

	RedisAddr       string         `json:"redis_addr"`
	RedisPassword   string         `json:"redis_password"`
	RedisDB         int            `json:"redis_db"`
	ProductCacheTTL timex.Duration `json:"product_cache_ttl"`

	NATSURL string `json:"nats_url"`

	S3RootUser     string `json:"s3_root_user"`
	S3RootPassword string `json:"s3_root_password"`
	S3Bucket       string `json:"s3_bucket"`
	S3Region       string `json:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint"`

	HTTPReadTimeout     timex.Duration `json:"http_read_timeout"`
	HTTPWriteTimeout    timex.Duration `json:"http_write_timeout"`
	HTTPShutdownTimeout timex.Duration `json:"http_shutdown_timeout"`

	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`
}

func toJson(c *Config) *JsonConfig {
	return &JsonConfig{
		Environment:                  c.Environment,
		EndpointAddrHTTP:             c.EndpointAddrHTTP,
		DatabaseDSN:                  c.DatabaseDSN,
		SecretKey:                    c.SecretKey,
		TokenIssuer:                  c.TokenIssuer,
		TokenAudience:                c.TokenAudience,
		LoginTokenValidityDuration:   timex.Duration{Duration: c.LoginTokenValidityDuration},
		RefreshTokenValidityDuration: timex.Duration{Duration: c.RefreshTokenValidityDuration},
		OtpValidityDuration:          timex.Duration{Duration: c.OtpValidityDuration},
		OtpMaxAttempts:               c.OtpMaxAttempts,
		SMTPHost:                     c.SMTPHost,
		SMTPPort:                     c.SMTPPort,
		SMTPUsername:                 c.SMTPUsername,
		SMTPPassword:                 c.SMTPPassword,
		SMTPSenderEmail:              c.SMTPSenderEmail,
		SMTPSenderName:               c.SMTPSenderName,
		SMTPEncryption:               c.SMTPEncryption,
		RedisAddr:                    c.RedisAddr,
		RedisPassword:                c.RedisPassword,
		RedisDB:                      c.RedisDB,
		ProductCacheTTL:              timex.Duration{Duration: c.ProductCacheTTL},
		NATSURL:                      c.NATSURL,
		S3RootUser:                   c.S3RootUser,
		S3RootPassword:               c.S3RootPassword,
		S3Bucket:                     c.S3Bucket,
		S3Region:                     c.S3Region,
		S3BaseEndpoint:               c.S3BaseEndpoint,
		HTTPReadTimeout:              timex.Duration{Duration: c.HTTPReadTimeout},
		HTTPWriteTimeout:             timex.Duration{Duration: c.HTTPWriteTimeout},
		HTTPShutdownTimeout:          timex.Duration{Duration: c.HTTPShutdownTimeout},
		LogLevel:                     c.LogLevel,
		LogFormat:                    c.LogFormat,
	}
}

func (j *JsonConfig) apply(c *Config) {
	c.Environment = j.Environment
	c.EndpointAddrHTTP = j.EndpointAddrHTTP
	c.DatabaseDSN = j.DatabaseDSN
	c.SecretKey = j.SecretKey
	c.TokenIssuer = j.TokenIssuer
	c.TokenAudience = j.TokenAudience
	c.LoginTokenValidityDuration = j.LoginTokenValidityDuration.Duration
	c.RefreshTokenValidityDuration = j.RefreshTokenValidityDuration.Duration
	c.OtpValidityDuration = j.OtpValidityDuration.Duration
	c.OtpMaxAttempts = j.OtpMaxAttempts
	c.SMTPHost = j.SMTPHost
	c.SMTPPort = j.SMTPPort
	c.SMTPUsername = j.SMTPUsername
	c.SMTPPassword = j.SMTPPassword
	c.SMTPSenderEmail = j.SMTPSenderEmail
	c.SMTPSenderName = j.SMTPSenderName
	c.SMTPEncryption = j.SMTPEncryption
	c.RedisAddr = j.RedisAddr
	c.RedisPassword = j.RedisPassword
	c.RedisDB = j.RedisDB
	c.ProductCacheTTL = j.ProductCacheTTL.Duration
	c.NATSURL = j.NATSURL
	c.S3RootUser = j.S3RootUser
	c.S3RootPassword = j.S3RootPassword
	c.S3Bucket = j.S3Bucket
	c.S3Region = j.S3Region
	c.S3BaseEndpoint = j.S3BaseEndpoint
	c.HTTPReadTimeout = j.HTTPReadTimeout.Duration
	c.HTTPWriteTimeout = j.HTTPWriteTimeout.Duration
	c.HTTPShutdownTimeout = j.HTTPShutdownTimeout.Duration
	c.LogLevel = j.LogLevel
	c.LogFormat = j.LogFormat
}

// parseJson overlays the JSON file named by -c/-config in args onto config.
// Keys absent from the file keep their current values.
func parseJson(config *Config, args []string) error {
	path := flagx.ConfigPath(args)
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	c := toJson(config)
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	c.apply(config)
	return nil
}
