// Package logging provides structured logging using uber/zap.
//
// Two modes are available:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output on stderr, so CLI results on
//     stdout stay clean
//
// Components receive a *zap.Logger through Component, which tags every
// entry with the component name:
//
//	logger, _ := logging.New(logging.Config{Level: "info"})
//	eng := engine.New(engine.WithLogger(logger.Component("engine")))
//	logger.Info("Server starting", zap.Int("port", 8000))
package logging
