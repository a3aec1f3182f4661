// Package logging wraps zap with trackd's conventions: structured JSON
// or console output, an optional OTEL log bridge, level-aware sampling,
// and context-carried correlation fields (trace ids, request ids, and
// the entity an operation is acting on).
//
// Services receive a *zap.Logger and should fall back to zap.NewNop()
// when given nil. The Logger type here is the process-level wrapper the
// command surface builds once and threads through context.
package logging
