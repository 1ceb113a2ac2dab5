package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/flagx"
	"github.com/dmitrijs2005/gophauth/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// It uses timex.Duration for interval fields, which allows parsing both
// string values such as "24h" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON
// configuration files. Fields left out of the file keep their current value.
type JsonConfig struct {
	HTTPAddr               string         `json:"http_addr"`
	DatabaseDSN            string         `json:"database_dsn"`
	SecretKey              string         `json:"secret_key"`
	LogLevel               string         `json:"log_level"`
	MaxLoginAttempts       int            `json:"max_login_attempts"`
	RememberMeLifetime     timex.Duration `json:"remember_me_lifetime"`
	BrowserSessionTokenTTL timex.Duration `json:"browser_session_token_ttl"`
	ResetTokenTTL          timex.Duration `json:"reset_token_ttl"`
	BcryptCost             int            `json:"bcrypt_cost"`
	ResetURLBase           string         `json:"reset_url_base"`
	VerifyURLBase          string         `json:"verify_url_base"`
	SMTPHost               string         `json:"smtp_host"`
	SMTPPort               int            `json:"smtp_port"`
	SMTPUsername           string         `json:"smtp_username"`
	SMTPPassword           string         `json:"smtp_password"`
	EmailFrom              string         `json:"email_from"`
	S3RootUser             string         `json:"s3_root_user"`
	S3RootPassword         string         `json:"s3_root_password"`
	S3Bucket               string         `json:"s3_bucket"`
	S3Region               string         `json:"s3_region"`
	S3BaseEndpoint         string         `json:"s3_base_endpoint"`
	AvatarUploadTTL        timex.Duration `json:"avatar_upload_ttl"`
}

// parseJson loads configuration values from the JSON file named by the -c
// or -config flag. Without the flag nothing is loaded. If the file cannot be
// read or contains invalid JSON, the function panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigFileFlag(os.Args[1:])
	if jsonConfigFile == "" {
		return
	}
	if err := ApplyJSONFile(config, jsonConfigFile); err != nil {
		panic(err)
	}
}

// ApplyJSONFile overlays the non-zero values of the JSON file at path onto
// config.
func ApplyJSONFile(config *Config, path string) error {
	file, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("invalid config file %s: %w", path, err)
	}

	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.LogLevel, c.LogLevel)
	setInt(&config.MaxLoginAttempts, c.MaxLoginAttempts)
	setDuration(&config.RememberMeLifetime, c.RememberMeLifetime)
	setDuration(&config.BrowserSessionTokenTTL, c.BrowserSessionTokenTTL)
	setDuration(&config.ResetTokenTTL, c.ResetTokenTTL)
	setInt(&config.BcryptCost, c.BcryptCost)
	setString(&config.ResetURLBase, c.ResetURLBase)
	setString(&config.VerifyURLBase, c.VerifyURLBase)
	setString(&config.SMTPHost, c.SMTPHost)
	setInt(&config.SMTPPort, c.SMTPPort)
	setString(&config.SMTPUsername, c.SMTPUsername)
	setString(&config.SMTPPassword, c.SMTPPassword)
	setString(&config.EmailFrom, c.EmailFrom)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setDuration(&config.AvatarUploadTTL, c.AvatarUploadTTL)
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
