// Package logx configures hwbot's structured logging.
//
// It is a small wrapper (logx.Logger) on top of zerolog that keeps console
// output readable (short timestamp + short caller) and file output
// JSON-structured. The Service can be re-applied at runtime, so loggers handed
// out earlier follow level changes from a config reload.
package logx
