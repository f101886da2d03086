package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/hostelpay/internal/flagx"
	"github.com/dmitrijs2005/hostelpay/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations
// accept either "90s"-style strings or integer nanoseconds.
type JsonConfig struct {
	HTTPAddr                     string         `json:"http_addr"`
	GRPCAddr                     string         `json:"grpc_addr"`
	DatabaseDSN                  string         `json:"database_dsn"`
	SecretKey                    string         `json:"secret_key"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`
	VerificationTokenTTL         timex.Duration `json:"verification_token_ttl"`
	PublicBaseURL                string         `json:"public_base_url"`
	LoginRedirectURL             string         `json:"login_redirect_url"`
	S3RootUser                   string         `json:"s3_root_user"`
	S3RootPassword               string         `json:"s3_root_password"`
	S3Bucket                     string         `json:"s3_bucket"`
	S3Region                     string         `json:"s3_region"`
	S3BaseEndpoint               string         `json:"s3_base_endpoint"`
	PresignTTL                   timex.Duration `json:"presign_ttl"`
	MaxProofSize                 int64          `json:"max_proof_size"`
	MailBackend                  string         `json:"mail_backend"`
	MailFrom                     string         `json:"mail_from"`
	AMQPURL                      string         `json:"amqp_url"`
	AMQPExchange                 string         `json:"amqp_exchange"`
	AMQPRoutingKey               string         `json:"amqp_routing_key"`
	RedisAddr                    string         `json:"redis_addr"`
	ResendCooldown               timex.Duration `json:"resend_cooldown"`
	CORSAllowedOrigins           []string       `json:"cors_allowed_origins"`
	PhoneDefaultRegion           string         `json:"phone_default_region"`
	LogLevel                     string         `json:"log_level"`
}

// parseJson overlays the file named by -c/-config onto config.
// Missing keys leave the current value untouched.
func parseJson(config *Config, args []string) error {
	path := flagx.ConfigFile(args)
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	c.applyTo(config)
	return nil
}

func (c *JsonConfig) applyTo(config *Config) {
	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.GRPCAddr, c.GRPCAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setDuration(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	setDuration(&config.RefreshTokenValidityDuration, c.RefreshTokenValidityDuration)
	setDuration(&config.VerificationTokenTTL, c.VerificationTokenTTL)
	setString(&config.PublicBaseURL, c.PublicBaseURL)
	setString(&config.LoginRedirectURL, c.LoginRedirectURL)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setDuration(&config.PresignTTL, c.PresignTTL)
	if c.MaxProofSize > 0 {
		config.MaxProofSize = c.MaxProofSize
	}
	setString(&config.MailBackend, c.MailBackend)
	setString(&config.MailFrom, c.MailFrom)
	setString(&config.AMQPURL, c.AMQPURL)
	setString(&config.AMQPExchange, c.AMQPExchange)
	setString(&config.AMQPRoutingKey, c.AMQPRoutingKey)
	setString(&config.RedisAddr, c.RedisAddr)
	setDuration(&config.ResendCooldown, c.ResendCooldown)
	if len(c.CORSAllowedOrigins) > 0 {
		config.CORSAllowedOrigins = c.CORSAllowedOrigins
	}
	setString(&config.PhoneDefaultRegion, c.PhoneDefaultRegion)
	setString(&config.LogLevel, c.LogLevel)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
