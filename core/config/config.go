package config

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	dotenvOnce sync.Once

	cacheMu sync.Mutex
	cache   = map[reflect.Type]any{}
)

// loadDotenv loads a .env file from the working directory exactly once per
// process. A missing file is not an error; environment variables set by the
// host take precedence since godotenv.Load never overrides a variable that
// is already set.
func loadDotenv() {
	dotenvOnce.Do(func() {
		_ = godotenv.Load()
	})
}

// Load populates dst from environment variables, using struct tags understood
// by github.com/caarlos0/env/v11 ("env", "envDefault", "envSeparator", ...).
// The first successful Load for a given type T is cached; subsequent calls
// for the same T copy the cached value into dst without re-reading the
// environment, so config structs can be loaded lazily from many call sites
// without repeated parsing or repeated "missing required var" churn.
func Load[T any](dst *T) error {
	loadDotenv()

	t := reflect.TypeOf(*dst)

	cacheMu.Lock()
	if cached, ok := cache[t]; ok {
		cacheMu.Unlock()
		*dst = cached.(T)
		return nil
	}
	cacheMu.Unlock()

	if err := env.Parse(dst); err != nil {
		return fmt.Errorf("config: parse %s: %w", t, err)
	}

	cacheMu.Lock()
	cache[t] = *dst
	cacheMu.Unlock()

	return nil
}

// MustLoad is Load but panics on error. Intended for startup code paths where
// a misconfigured environment should fail fast.
func MustLoad[T any](dst *T) {
	if err := Load(dst); err != nil {
		panic(err)
	}
}

// Reset clears the cache. Exposed for tests that need to reload configuration
// with a different environment within the same process.
func Reset() {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	cache = map[reflect.Type]any{}
}
