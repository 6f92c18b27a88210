// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package ai provides abstractions for the model services used by triage.
//
// # Design Principles
//
// The package is designed around four interfaces:
//
//   - Embedder: Generates vector embeddings from text
//   - Analyzer: Reports category, priority, and facts for a message
//   - Composer: Drafts a reply with a self-rated confidence
//   - AIProvider: Aggregates the services for convenient initialization
//
// Provider output is deliberately loose (free-form category labels and fact
// names). The classify and respond packages validate it before anything
// crosses into the pipeline.
//
// # Errors
//
// Implementations wrap transport problems (timeouts, rate limits, refused
// connections) in core.ErrTransientProvider so the orchestrator can retry them.
// Output that cannot be parsed after local repair attempts is reported as
// core.ErrClassification or core.ErrGeneration.
//
// # Implementation Packages
//
//   - ai/openai: Production implementation using OpenAI-compatible APIs via langchaingo
//   - ai/mock: Test doubles for unit testing without external dependencies
//
// Public constructors (openai.NewProvider, openai.NewEmbedder, etc.) return
// interface types. Mock constructors return concrete types so tests can
// inject behavior and assert on call counts.
//
// # Usage Example
//
//	config := ai.NewConfig(ai.WithHost("http://localhost:11434"))
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	analysis, err := provider.Analyzer().Analyze(ctx, ai.AnalysisRequest{Subject: "Invoice 42"})
package ai
