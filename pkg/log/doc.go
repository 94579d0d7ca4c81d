/*
Package log wraps zerolog to provide JSON-structured logging with
component-specific loggers, configurable levels, and helper functions for
the storage substrate's common logging patterns.

Initializing the Logger:

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true, Output: os.Stdout})
	log.Info("repo opened")

Component Loggers:

	blobLog := log.WithComponent("blobstore")
	blobLog.Info().Str("key", key).Msg("put")

	repoLog := log.WithRepoID(repoID)
	repoLog.Warn().Msg("segmented changelog disabled for this repo")

Do:
  - use Info level in production, Debug in development
  - use structured fields (.Str, .Int) instead of string concatenation
  - attach repo id / vertex context via WithRepoID / WithVertex

Don't:
  - log secrets or blob contents
  - log inside tight per-id loops during derivation; log per-batch instead
*/
package log
