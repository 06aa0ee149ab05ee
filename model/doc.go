// Package model defines the provider-agnostic text completion interface used
// by the reference evaluator, plus a deterministic MockModel for tests.
//
// Providers live in subpackages (anthropic, openai) and wrap the vendor SDKs
// so the evaluator never imports them directly.
package model
