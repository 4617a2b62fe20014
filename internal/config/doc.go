// Package config loads the daemon configuration from an optional JSON file,
// a .env file and environment variables, in that order of precedence from
// lowest to highest.
package config
