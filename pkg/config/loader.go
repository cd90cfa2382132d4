package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// cache holds one parsed copy per config type so repeated Load calls across
// packages see identical values and the environment is read once.
type cache struct {
	mu     sync.RWMutex
	values map[string]any
	onces  map[string]*sync.Once
}

var (
	loaded = &cache{
		values: make(map[string]any),
		onces:  make(map[string]*sync.Once),
	}

	dotenvOnce sync.Once
)

// Load populates v from the environment using caarlos0/env struct tags. A
// .env file in the working directory is applied first when present. Each
// config type parses at most once per process; later calls return the
// cached copy.
func Load[T any](v *T) error {
	dotenvOnce.Do(func() {
		// Missing .env is fine, real env vars may be all there is.
		_ = godotenv.Load()
	})
	if v == nil {
		return ErrNilPointer
	}

	key := typeKey[T]()

	loaded.mu.RLock()
	if cached, ok := loaded.values[key]; ok {
		*v = cached.(T)
		loaded.mu.RUnlock()
		return nil
	}
	loaded.mu.RUnlock()

	loaded.mu.Lock()
	once, ok := loaded.onces[key]
	if !ok {
		once = new(sync.Once)
		loaded.onces[key] = once
	}
	loaded.mu.Unlock()

	var parseErr error
	once.Do(func() {
		if err := env.Parse(v); err != nil {
			parseErr = errors.Join(ErrParsingConfig, err)
			return
		}
		loaded.mu.Lock()
		loaded.values[key] = *v
		loaded.mu.Unlock()
	})
	if parseErr != nil {
		return parseErr
	}

	// A concurrent caller may have won the once; read back the cached copy
	// so everyone observes the same value.
	loaded.mu.RLock()
	defer loaded.mu.RUnlock()
	if cached, ok := loaded.values[key]; ok {
		*v = cached.(T)
		return nil
	}
	return ErrConfigNotLoaded
}

// MustLoad is Load for configs the process cannot start without.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
}

func typeKey[T any]() string {
	var zero T
	t := reflect.TypeOf(zero)
	if t == nil {
		return fmt.Sprintf("%T", *new(T))
	}
	return t.String()
}
