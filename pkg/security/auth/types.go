package auth

// Principal is the identity an API key authenticates.
type Principal struct {
	Actor    string
	Team     string
	Disabled bool
}

// KeyStore validates API keys.
type KeyStore interface {
	Validate(key string) (*Principal, error)
}
