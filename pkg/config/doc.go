// Package config loads typed configuration from environment variables.
//
// Structs declare their variables with caarlos0/env tags; a .env file in the
// working directory is read once on first use through godotenv.
//
//	type Config struct {
//		Addr string `env:"HTTP_ADDR" envDefault:":8080"`
//	}
//
//	var cfg Config
//	config.MustLoad(&cfg)
package config
