package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Validator is implemented by configuration structs that need cross-field
// checks after parsing (for example "live key requires live webhook secret").
type Validator interface {
	Validate() error
}

type cache struct {
	mu     sync.Mutex
	values map[string]any
}

var (
	loaded = &cache{values: make(map[string]any)}

	dotenvOnce sync.Once
)

// Load parses environment variables into v according to its `env` tags.
//
// The first call reads a .env file from the working directory when one
// exists. Each configuration type is parsed once; later calls for the same
// type get the cached copy. If *T implements Validator, Validate runs before
// the value is cached, and a failing configuration is never cached.
//
//	var cfg subscription.Config
//	if err := config.Load(&cfg); err != nil {
//	    return err
//	}
func Load[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}
	dotenvOnce.Do(func() {
		// a missing .env file is fine
		_ = godotenv.Load()
	})

	key := typeKey[T]()

	loaded.mu.Lock()
	defer loaded.mu.Unlock()

	if cached, ok := loaded.values[key]; ok {
		*v = cached.(T)
		return nil
	}

	var parsed T
	if err := env.Parse(&parsed); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	if vv, ok := any(&parsed).(Validator); ok {
		if err := vv.Validate(); err != nil {
			return errors.Join(ErrInvalidConfig, err)
		}
	}

	loaded.values[key] = parsed
	*v = parsed
	return nil
}

// MustLoad is Load for configuration the process cannot start without.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
}

// Reset drops every cached configuration. Tests use it after changing the
// process environment.
func Reset() {
	loaded.mu.Lock()
	loaded.values = make(map[string]any)
	loaded.mu.Unlock()
}

func typeKey[T any]() string {
	t := reflect.TypeFor[T]()
	return t.PkgPath() + "." + t.String()
}
