// Package executor defines the invocation contract for the narrow,
// single-purpose collaborators that produce missing gate evidence, and a
// pool that fans invocations out with bounded parallelism.
//
// The core treats evidence payloads as opaque. Executors are expected to
// be short-lived; each call runs under a response deadline after which
// it is treated as failed. Results from parallel calls are joined in a
// stable order (executor id, then requirement id) so that downstream
// gate re-evaluation is reproducible.
package executor
