package auth

import (
	"crypto/sha256"
	"fmt"
	"sync"

	"mercator-hq/tribune/pkg/config"
)

type digest [sha256.Size]byte

// KeyValidator validates API keys against a configured set of keys.
type KeyValidator struct {
	mu   sync.RWMutex
	keys map[digest]*Principal
}

// NewKeyValidator creates a validator for keys, mapping each key value to
// the principal it authenticates.
func NewKeyValidator(keys map[string]*Principal) *KeyValidator {
	v := &KeyValidator{keys: make(map[digest]*Principal, len(keys))}
	for key, p := range keys {
		v.keys[sha256.Sum256([]byte(key))] = p
	}
	return v
}

// NewKeyValidatorFromConfig builds a validator from cfg. Keys given by
// key_env are resolved with lookupEnv; an unset variable is an error.
func NewKeyValidatorFromConfig(cfg config.AuthConfig, lookupEnv func(string) (string, bool)) (*KeyValidator, error) {
	keys := make(map[string]*Principal, len(cfg.Keys))
	for i, k := range cfg.Keys {
		value := k.Key
		if k.KeyEnv != "" {
			v, ok := lookupEnv(k.KeyEnv)
			if !ok || v == "" {
				return nil, fmt.Errorf("server.auth.keys[%d]: environment variable %s is not set", i, k.KeyEnv)
			}
			value = v
		}
		if _, dup := keys[value]; dup {
			return nil, fmt.Errorf("server.auth.keys[%d]: duplicate key for actor %q", i, k.Actor)
		}
		keys[value] = &Principal{Actor: k.Actor, Team: k.Team, Disabled: k.Disabled}
	}
	return NewKeyValidator(keys), nil
}

// Validate checks if the given API key is valid and returns its principal.
func (v *KeyValidator) Validate(key string) (*Principal, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	p, ok := v.keys[sha256.Sum256([]byte(key))]
	if !ok {
		return nil, ErrInvalidKey
	}
	if p.Disabled {
		return nil, ErrKeyDisabled
	}
	return p, nil
}

// Add adds or replaces a key.
func (v *KeyValidator) Add(key string, p *Principal) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.keys[sha256.Sum256([]byte(key))] = p
}

// Remove removes a key.
func (v *KeyValidator) Remove(key string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.keys, sha256.Sum256([]byte(key)))
}

// Len returns the number of configured keys.
func (v *KeyValidator) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.keys)
}
