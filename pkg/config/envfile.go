package config

import (
	"errors"
	"os"

	"github.com/joho/godotenv"
)

// LoadEnv applies one or more env files before any config structs parse.
// Unlike the implicit .env fallback in Load, files named here must exist.
// Already-set environment variables win over file values.
func LoadEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			if os.IsNotExist(err) {
				return errors.Join(ErrEnvFileNotFound, err)
			}
			return err
		}
	}
	return godotenv.Load(files...)
}
