package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/dmitrijs2005/hostelpay/internal/flagx"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "HOSTEL"

const defaultEnvFile = ".env"

// envKeys lists every key read from HOSTEL_<KEY> variables.
var envKeys = []string{
	"http_addr", "grpc_addr", "database_dsn", "secret_key",
	"access_token_validity_duration", "refresh_token_validity_duration",
	"verification_token_ttl", "public_base_url", "login_redirect_url",
	"s3_root_user", "s3_root_password", "s3_bucket", "s3_region", "s3_base_endpoint",
	"presign_ttl", "max_proof_size",
	"mail_backend", "mail_from", "amqp_url", "amqp_exchange", "amqp_routing_key",
	"redis_addr", "resend_cooldown", "cors_allowed_origins",
	"phone_default_region", "log_level",
}

// loadDotEnv reads a dotenv file into the process environment without
// overriding variables that are already set. A missing default file is fine.
func loadDotEnv(args []string) error {
	path := flagx.EnvFile(args)
	explicit := path != ""
	if !explicit {
		path = defaultEnvFile
	}

	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// parseEnv overlays HOSTEL_* environment variables onto config.
func parseEnv(config *Config, args []string) error {
	if err := loadDotEnv(args); err != nil {
		return err
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	for _, k := range envKeys {
		if err := v.BindEnv(k); err != nil {
			return fmt.Errorf("bind env %s: %w", k, err)
		}
	}

	str := func(dst *string, key string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	dur := func(dst *time.Duration, key string) {
		if v.IsSet(key) {
			*dst = v.GetDuration(key)
		}
	}

	str(&config.HTTPAddr, "http_addr")
	str(&config.GRPCAddr, "grpc_addr")
	str(&config.DatabaseDSN, "database_dsn")
	str(&config.SecretKey, "secret_key")
	dur(&config.AccessTokenValidityDuration, "access_token_validity_duration")
	dur(&config.RefreshTokenValidityDuration, "refresh_token_validity_duration")
	dur(&config.VerificationTokenTTL, "verification_token_ttl")
	str(&config.PublicBaseURL, "public_base_url")
	str(&config.LoginRedirectURL, "login_redirect_url")
	str(&config.S3RootUser, "s3_root_user")
	str(&config.S3RootPassword, "s3_root_password")
	str(&config.S3Bucket, "s3_bucket")
	str(&config.S3Region, "s3_region")
	str(&config.S3BaseEndpoint, "s3_base_endpoint")
	dur(&config.PresignTTL, "presign_ttl")
	if v.IsSet("max_proof_size") {
		config.MaxProofSize = v.GetInt64("max_proof_size")
	}
	str(&config.MailBackend, "mail_backend")
	str(&config.MailFrom, "mail_from")
	str(&config.AMQPURL, "amqp_url")
	str(&config.AMQPExchange, "amqp_exchange")
	str(&config.AMQPRoutingKey, "amqp_routing_key")
	str(&config.RedisAddr, "redis_addr")
	dur(&config.ResendCooldown, "resend_cooldown")
	if v.IsSet("cors_allowed_origins") {
		config.CORSAllowedOrigins = splitList(v.GetString("cors_allowed_origins"))
	}
	str(&config.PhoneDefaultRegion, "phone_default_region")
	str(&config.LogLevel, "log_level")

	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
