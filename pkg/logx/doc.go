// Package logx configures framesched's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Repeated warnings throttled (Limiter) so per-frame misuse can't flood the log
package logx
