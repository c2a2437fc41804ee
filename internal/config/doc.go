// Package config loads and validates the gridlock configuration file.
//
// Configuration is TOML at ~/.config/gridlock/config.toml by default. Load
// returns repository defaults when no file exists so the CLI stays usable
// before the operator writes one. Secrets (API keys and tokens) may be left
// out of the file and supplied through the environment or a .env file; Load
// overlays them after parsing.
package config
