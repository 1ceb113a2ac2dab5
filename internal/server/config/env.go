package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/flagx"
	"github.com/joho/godotenv"
)

// parseEnv overlays values from process environment variables. When -env
// names a file, or ENV=dev and a .env file exists, it is loaded first;
// variables already present in the environment win over the file.
// Malformed numeric values panic, as the JSON overlay does.
func parseEnv(config *Config) {
	if path := flagx.EnvFileFlag(os.Args[1:]); path != "" {
		if err := godotenv.Load(path); err != nil {
			panic(err)
		}
	} else if os.Getenv("ENV") == "dev" {
		_ = godotenv.Load()
	}

	envString("HTTP_ADDR", &config.HTTPAddr)
	envString("DATABASE_DSN", &config.DatabaseDSN)
	envString("SECRET_KEY", &config.SecretKey)
	envString("LOG_LEVEL", &config.LogLevel)
	envInt("MAX_LOGIN_ATTEMPTS", &config.MaxLoginAttempts)
	envDuration("REMEMBER_ME_LIFETIME", &config.RememberMeLifetime)
	envDuration("BROWSER_SESSION_TOKEN_TTL", &config.BrowserSessionTokenTTL)
	envDuration("RESET_TOKEN_TTL", &config.ResetTokenTTL)
	envInt("BCRYPT_COST", &config.BcryptCost)
	envString("RESET_URL_BASE", &config.ResetURLBase)
	envString("VERIFY_URL_BASE", &config.VerifyURLBase)
	envString("SMTP_HOST", &config.SMTPHost)
	envInt("SMTP_PORT", &config.SMTPPort)
	envString("SMTP_USERNAME", &config.SMTPUsername)
	envString("SMTP_PASSWORD", &config.SMTPPassword)
	envString("EMAIL_FROM", &config.EmailFrom)
	envString("S3_ROOT_USER", &config.S3RootUser)
	envString("S3_ROOT_PASSWORD", &config.S3RootPassword)
	envString("S3_BUCKET", &config.S3Bucket)
	envString("S3_REGION", &config.S3Region)
	envString("S3_BASE_ENDPOINT", &config.S3BaseEndpoint)
	envDuration("AVATAR_UPLOAD_TTL", &config.AvatarUploadTTL)
}

func envString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		panic(fmt.Errorf("%s: %w", key, err))
	}
	*dst = n
}

func envDuration(key string, dst *time.Duration) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		panic(fmt.Errorf("%s: %w", key, err))
	}
	*dst = d
}
