package database

import (
	"net"
	"net/url"
	"strconv"

	"github.com/rickgao/market-stream/internal/config"
)

// ApplicationName tags market stream sessions in pg_stat_activity.
const ApplicationName = "market-stream"

// DSN renders cfg as a postgres:// URL for pgxpool.ParseConfig.
func DSN(cfg config.DBConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}

	q := url.Values{}
	q.Set("sslmode", sslMode)
	q.Set("application_name", ApplicationName)

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     "/" + cfg.Name,
		RawQuery: q.Encode(),
	}
	return u.String()
}
