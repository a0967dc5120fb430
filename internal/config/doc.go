// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
// An optional .env file is loaded into the environment before expansion.
// Redis and TimescaleDB are optional: leaving redis.addr/redis.url or
// database.timescale.host empty disables the quote cache or quote history.
package config
