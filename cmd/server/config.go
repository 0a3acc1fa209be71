package main

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/lomect/accountd/internal/auth"
	"github.com/lomect/accountd/internal/email"
	"github.com/lomect/accountd/internal/email/mailgun"
	"github.com/lomect/accountd/internal/email/postmark"
	"github.com/lomect/accountd/internal/krypto"
	"github.com/lomect/accountd/internal/sessions"
	"github.com/redis/go-redis/v9"
)

const (
	senderLog      = "log"
	senderPostmark = "postmark"
	senderMailgun  = "mailgun"
)

// httpConfig is the configuration for the HTTP server.
type httpConfig struct {
	addr            string
	readTimeout     time.Duration
	writeTimeout    time.Duration
	idleTimeout     time.Duration
	shutdownTimeout time.Duration
	// publicURL is where clients reach the server, used to build links in emails.
	publicURL *url.URL
}

type dbConfig struct {
	file    string
	migrate bool
}

type emailConfig struct {
	sender   string
	from     email.Address
	postmark postmark.Settings
	mailgun  mailgun.Settings
}

// config is the configuration for the server command.
type config struct {
	http     httpConfig
	db       dbConfig
	redis    *redis.Options
	sessions sessions.Config
	auth     auth.ServiceConfig
	email    emailConfig
}

// defaultConfig returns a config with sane default values.
func defaultConfig() config {
	return config{
		http: httpConfig{
			addr:            ":8888",
			readTimeout:     time.Second * 5,
			writeTimeout:    time.Second * 10,
			idleTimeout:     time.Second * 120,
			shutdownTimeout: time.Second * 15,
			publicURL:       &url.URL{Scheme: "http", Host: "localhost:8888"},
		},
		db: dbConfig{
			file:    "accountd.db",
			migrate: true,
		},
		redis: &redis.Options{
			Network: "tcp",
			Addr:    "localhost:6379",
		},
		sessions: sessions.DefaultConfig(),
		auth:     auth.DefaultServiceConfig(),
		email: emailConfig{
			sender: senderLog,
			postmark: postmark.Settings{
				APIURL:        &url.URL{Scheme: "https", Host: "api.postmarkapp.com"},
				MessageStream: "outbound",
			},
			mailgun: mailgun.Settings{
				Scheme:  "https",
				APIHost: "api.mailgun.net",
			},
		},
	}
}

// confirmURL is the base of the links in confirmation emails.
func (c config) confirmURL() string {
	u := *c.http.publicURL
	u.Path = "/api/v1/auth/confirm/"
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

// requiredEnv lists the env variables that have no default.
var requiredEnv = []string{
	"EMAIL_FROM",
}

// envMap maps environment variable names to fields in the config struct.
var envMap = map[string]func(v string, c *config) error{
	"HTTP_ADDR": func(v string, c *config) error {
		c.http.addr = v
		return nil
	},
	"HTTP_READ_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.http.readTimeout, 0, math.MaxInt64)
	},
	"HTTP_WRITE_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.http.writeTimeout, 0, math.MaxInt64)
	},
	"HTTP_IDLE_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.http.idleTimeout, 0, math.MaxInt64)
	},
	"HTTP_SHUTDOWN_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.http.shutdownTimeout, 0, math.MaxInt64)
	},
	"HTTP_PUBLIC_URL": func(v string, c *config) error {
		return confAbsURL(v, &c.http.publicURL)
	},
	"DB_FILE": func(v string, c *config) error {
		if v == "" {
			return errors.New("empty filename")
		}
		c.db.file = v
		return nil
	},
	"DB_MIGRATE": func(v string, c *config) error {
		return confBool(v, &c.db.migrate)
	},
	"REDIS_URL": func(v string, c *config) error {
		opts, err := redis.ParseURL(v)
		if err != nil {
			return err
		}
		c.redis = opts
		return nil
	},
	"SESSION_TTL": func(v string, c *config) error {
		return confDuration(v, &c.sessions.TTL, time.Second, math.MaxInt64)
	},
	"SESSION_REGENERATE_BELOW": func(v string, c *config) error {
		return confDuration(v, &c.auth.RegenerateBelow, time.Second, math.MaxInt64)
	},
	"EMAIL_SENDER": func(v string, c *config) error {
		switch v {
		case senderLog, senderPostmark, senderMailgun:
			c.email.sender = v
			return nil
		default:
			return fmt.Errorf("unknown sender %q, want one of %s, %s or %s", v, senderLog, senderPostmark, senderMailgun)
		}
	},
	"EMAIL_FROM": func(v string, c *config) error {
		addr, err := email.ParseAddress(v)
		if err != nil {
			return err
		}
		c.email.from = addr
		return nil
	},
	"POSTMARK_API_URL": func(v string, c *config) error {
		return confAbsURL(v, &c.email.postmark.APIURL)
	},
	"POSTMARK_SERVER_TOKEN": func(v string, c *config) error {
		c.email.postmark.ServerToken = krypto.NewSecret(v)
		return nil
	},
	"POSTMARK_MESSAGE_STREAM": func(v string, c *config) error {
		c.email.postmark.MessageStream = v
		return nil
	},
	"MAILGUN_API_HOST": func(v string, c *config) error {
		c.email.mailgun.APIHost = v
		return nil
	},
	"MAILGUN_DOMAIN": func(v string, c *config) error {
		c.email.mailgun.Domain = v
		return nil
	},
	"MAILGUN_USERNAME": func(v string, c *config) error {
		c.email.mailgun.Username = v
		return nil
	},
	"MAILGUN_PASSWORD": func(v string, c *config) error {
		c.email.mailgun.Password = krypto.NewSecret(v)
		return nil
	},
}

// configFromEnv returns a config with values from the environment. It falls
// back to default values for any missing environment variables.
//
// It does a best effort to validate provided values, so that mistakes are
// caught ASAP. However, there is no guarantee that the returned config
// is valid and will work.
func configFromEnv() (config, error) {
	c := defaultConfig()

	var errs []error
	for _, key := range requiredEnv {
		if _, ok := os.LookupEnv(key); !ok {
			errs = append(errs, fmt.Errorf("missing required env variable %s", key))
		}
	}

	for key, mf := range envMap {
		if val, ok := os.LookupEnv(key); ok {
			if err := mf(val, &c); err != nil {
				errs = append(errs, fmt.Errorf("invalid env variable %s: %w", key, err))
			}
		}
	}

	if len(errs) > 0 {
		return c, errors.Join(errs...)
	}

	// Links in emails point back at this server.
	c.auth.ConfirmURL = c.confirmURL()

	return c, nil
}

// confDuration attempts to parse v into tgt and checks if the result is in
// the provided range (inclusive).
func confDuration(v string, tgt *time.Duration, min, max time.Duration) error {
	dur, err := time.ParseDuration(v)
	if err != nil {
		return err
	}

	if dur < min || dur > max {
		return fmt.Errorf("duration %s not in range [%s, %s] (inclusive)", dur, min, max)
	}

	*tgt = dur

	return nil
}

func confBool(v string, tgt *bool) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return err
	}

	*tgt = b

	return nil
}

// confAbsURL parses v into tgt, the URL needs both a scheme and a host.
func confAbsURL(v string, tgt **url.URL) error {
	u, err := url.Parse(v)
	if err != nil {
		return err
	}

	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("url %q needs a scheme and a host", v)
	}

	*tgt = u

	return nil
}
