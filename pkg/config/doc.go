// Package config loads typed configuration structs from the environment.
//
// Every component in the engine declares its own config struct with
// caarlos0/env tags (pg.Config, redis.Config, provider.PaddleConfig, ...)
// and loads it through the generic Load/MustLoad helpers. A .env file in
// the working directory is picked up automatically; LoadEnv applies
// explicit files for tests and local overrides.
//
//	var cfg pg.Config
//	config.MustLoad(&cfg)
//
// Each config type parses at most once per process and later calls are
// served from a cache, so independent packages can load the same struct
// without coordinating.
package config
