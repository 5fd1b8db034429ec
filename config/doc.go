// Package config loads mentorit settings.
//
// Settings come from three layers, later layers winning: built-in defaults,
// an optional YAML file, and MENTORIT_* environment variables. A .env file in
// the working directory is loaded into the environment first when present.
// Secrets are never stored in the file; the file names the environment
// variable that holds each key.
package config
