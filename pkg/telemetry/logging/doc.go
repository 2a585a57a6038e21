// Package logging builds the process logger.
//
// Loggers are plain *slog.Logger values. New picks the JSON or text handler
// from configuration and wraps it with a ContextHandler, which copies the
// correlation id, saga id, aggregate id and actor stored in a context, plus
// the active trace and span ids, onto each record logged with a *Context
// method:
//
//	logger, err := logging.Setup(cfg.Telemetry.Logging, logging.Options{})
//	if err != nil {
//		return err
//	}
//
//	ctx = logging.WithCorrelationID(ctx, evt.CorrelationID.String())
//	ctx = logging.WithSagaID(ctx, s.ID.String())
//	logger.InfoContext(ctx, "saga advanced", "state", s.State)
//
// # Redaction
//
// Attributes named like credentials (token, password, passphrase, secret,
// authorization) are replaced with "***". Credentials embedded in repository
// URLs and bearer tokens are masked inside any string or error value.
package logging
