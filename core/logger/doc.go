// Package logger builds the zap logger shared by every component.
//
// New honours Config.Level (debug, info, warn, error) and Config.Format
// (json or console). Console output uses colored levels without stack
// traces and suits the CLI; json suits the long running API server.
//
// WithRayID scopes a logger to one HTTP request so that the state
// transitions of an undo or rollback can be traced back to the call that
// started them:
//
//	l := logger.WithRayID(log, c)
//	l.Info("Undo requested", zap.Strings("commits", hashes))
package logger
