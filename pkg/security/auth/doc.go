/*
Package auth provides API key authentication for the Tribune evaluation API.

A key authenticates a principal. The principal's actor becomes the requester
of every evaluation made with the key, so a caller cannot claim an exemption
scoped to another user by naming that user in the request body.

# Basic Usage

Build a validator from configuration and wrap the API handler:

	validator, err := auth.NewKeyValidatorFromConfig(cfg.Server.Auth, os.LookupEnv)
	if err != nil {
		return err
	}
	mw := auth.NewMiddleware(validator, cfg.Server.Auth.Sources)
	handler = mw.Handle(handler)

Inside a handler, the authenticated principal is available from the request
context:

	if p, ok := auth.PrincipalFrom(r.Context()); ok {
		evalCtx.Requester = p.Actor
	}

# Key Sources

Keys are read from the configured sources in order. Without configuration
the middleware accepts:

	Authorization: Bearer <key>
	X-API-Key: <key>

A query parameter source is available but leaks keys into access logs.

# Storage

Only SHA-256 digests of keys are kept in memory. Key values are never logged.

# Configuration Example

	server:
	  auth:
	    enabled: true
	    keys:
	      - key_env: TRIBUNE_CI_KEY
	        actor: ci-pipeline
	        team: platform
	      - key_env: TRIBUNE_LEGACY_KEY
	        actor: legacy-bot
*/
package auth
