// Package logger turns the logging section of the config into a *zap.Logger.
//
// Two presets exist: development (console, colored levels) and production
// (JSON with an ISO8601 "timestamp" key and a fixed service field). The
// logger is passed to components through their constructors; nothing logs
// through a global.
//
//	log, err := logger.New("production", "info")
//	if err != nil {
//	    return err
//	}
//	log.Info("judge started", zap.String("backend", "docker"))
package logger
