// Package mock provides test double implementations of AI service interfaces.
//
// This package contains mock implementations of ai.Embedder, ai.Analyzer,
// ai.Composer, and ai.AIProvider for use in unit tests. The mocks allow tests
// to run without external AI services and give deterministic behavior.
//
// # Usage in Tests
//
//	provider := mock.NewMockProvider()
//	provider.MockAnalyzer().AnalyzeFunc = mock.Categorize("business", 3)
//	provider.MockComposer().ComposeFunc = mock.Reply("Sounds good, see you Tuesday.", 0.92)
//
//	// Check call counts
//	count := provider.MockComposer().CallCount()
//
// # Default Behavior
//
//   - MockEmbedder: Returns deterministic unit vectors based on text hash
//   - MockAnalyzer: Reports category "other" at priority 3
//   - MockComposer: Returns DefaultReply at confidence 0.5
//
// Call counters are atomic so the mocks can be shared by concurrent workers.
package mock
