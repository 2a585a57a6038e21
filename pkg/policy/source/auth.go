package source

import (
	"fmt"
	"os"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"

	"mercator-hq/tribune/pkg/config"
)

// Git auth kinds accepted in policy.git.auth.type.
const (
	AuthNone  = "none"
	AuthToken = "token"
	AuthSSH   = "ssh"
)

// Credentials are the resolved secrets for a git remote. Secrets named by an
// *_env field are read once, when the credentials are built, so a missing
// variable fails at startup rather than on the first pull.
type Credentials struct {
	kind       string
	token      string
	keyPath    string
	passphrase string
}

// NewCredentials resolves cfg. An *_env field takes precedence over the
// literal value and is looked up with lookupEnv; an unset variable is an
// error.
func NewCredentials(cfg config.GitAuthConfig, lookupEnv func(string) (string, bool)) (*Credentials, error) {
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}

	switch cfg.Type {
	case AuthNone, "":
		return &Credentials{kind: AuthNone}, nil

	case AuthToken:
		token, err := secret("policy.git.auth.token", cfg.Token, cfg.TokenEnv, lookupEnv)
		if err != nil {
			return nil, err
		}
		if token == "" {
			return nil, fmt.Errorf("%w: policy.git.auth.token: token or token_env is required", ErrInvalidConfig)
		}
		return &Credentials{kind: AuthToken, token: token}, nil

	case AuthSSH:
		if cfg.SSHKeyPath == "" {
			return nil, fmt.Errorf("%w: policy.git.auth.ssh_key_path is required", ErrInvalidConfig)
		}
		passphrase, err := secret("policy.git.auth.ssh_key_passphrase", cfg.SSHKeyPassphrase, cfg.SSHKeyPassphraseEnv, lookupEnv)
		if err != nil {
			return nil, err
		}
		return &Credentials{kind: AuthSSH, keyPath: cfg.SSHKeyPath, passphrase: passphrase}, nil

	default:
		return nil, fmt.Errorf("%w: policy.git.auth.type: unknown auth type %q", ErrInvalidConfig, cfg.Type)
	}
}

func secret(field, literal, env string, lookupEnv func(string) (string, bool)) (string, error) {
	if env == "" {
		return literal, nil
	}
	v, ok := lookupEnv(env)
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %s: environment variable %s is not set", ErrInvalidConfig, field, env)
	}
	return v, nil
}

// Kind is the auth type, for logs.
func (c *Credentials) Kind() string { return c.kind }

// Method returns the go-git transport auth. Anonymous access returns nil.
// SSH keys are read on every call so a rotated key is picked up by the next
// pull; the key file must not be readable by group or others.
func (c *Credentials) Method() (transport.AuthMethod, error) {
	switch c.kind {
	case AuthToken:
		// Hosts ignore the user name for token auth.
		return &http.BasicAuth{Username: "git", Password: c.token}, nil

	case AuthSSH:
		info, err := os.Stat(c.keyPath)
		if err != nil {
			return nil, fmt.Errorf("ssh key %s: %w", c.keyPath, err)
		}
		if perm := info.Mode().Perm(); perm&0o077 != 0 {
			return nil, fmt.Errorf("ssh key %s: permissions %#o allow group or other access, want 0600", c.keyPath, perm)
		}
		keys, err := ssh.NewPublicKeysFromFile("git", c.keyPath, c.passphrase)
		if err != nil {
			return nil, fmt.Errorf("ssh key %s: %w", c.keyPath, err)
		}
		return keys, nil

	default:
		return nil, nil
	}
}
