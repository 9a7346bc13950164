// Package runtime is the public façade over the SAXS batch scheduler
// (spec §4.G): create a Runtime, add samples, optionally configure
// checkpoints, run the batch synchronously or asynchronously, and
// collect finished samples with Regroup.
//
// Mirroring framesupplier's public/internal split, Runtime is an
// interface — the concurrency-sensitive engine lives in
// runtime/internal and is reachable only through New.
package runtime
