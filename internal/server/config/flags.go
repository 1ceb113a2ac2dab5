package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-s string   session token HMAC secret key
//	-l int      failed logins before lockout
//	-m int      remember-me session lifetime, hours
//	-b int      browser session token lifetime, hours
//	-r int      reset token lifetime, hours
//	-k int      bcrypt cost
//	-u string   password reset link base URL
//	-v string   email verification link base URL
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes using
//     flagx.FilterArgs, avoiding collisions with other components.
//   - Duration flags are accepted as integers in hours.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-s", "-l", "-m", "-b", "-r", "-k", "-u", "-v"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.IntVar(&config.MaxLoginAttempts, "l", config.MaxLoginAttempts, "failed logins before lockout")

	rememberMe := fs.Int("m", int(config.RememberMeLifetime.Hours()), "remember-me session lifetime (in hours)")
	browser := fs.Int("b", int(config.BrowserSessionTokenTTL.Hours()), "browser session token lifetime (in hours)")
	reset := fs.Int("r", int(config.ResetTokenTTL.Hours()), "reset token lifetime (in hours)")

	fs.IntVar(&config.BcryptCost, "k", config.BcryptCost, "bcrypt cost")
	fs.StringVar(&config.ResetURLBase, "u", config.ResetURLBase, "password reset link base URL")
	fs.StringVar(&config.VerifyURLBase, "v", config.VerifyURLBase, "email verification link base URL")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "m":
			config.RememberMeLifetime = time.Duration(*rememberMe) * time.Hour
		case "b":
			config.BrowserSessionTokenTTL = time.Duration(*browser) * time.Hour
		case "r":
			config.ResetTokenTTL = time.Duration(*reset) * time.Hour
		}
	})
}
