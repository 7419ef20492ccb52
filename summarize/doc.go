// Package summarize compresses conversation message ranges into short
// summaries for the memory subsystem.
//
// A Summarizer prefers a locally-hosted completion endpoint when one is
// configured, so sessions bound to a local model keep summarizing offline.
// Output from local models passes through a Validator that rejects fabricated
// or conversational text; any failure (network, timeout, rejection) falls back
// to a deterministic extractive summary, so Summarize never fails.
package summarize
