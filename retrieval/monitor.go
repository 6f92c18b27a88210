package retrieval

import "github.com/poiesic/triage/core"

// Monitor provides hooks to observe a retrieval.
// Implement this interface to trace what the retriever considered for a message.
type Monitor interface {
	Start(id core.MessageID, category core.Category)
	Skipped(reason string)
	AfterSearch(hits []core.ScoredEntry)
	Finish(result core.ContextResult)
}

// noopMonitor is a no-op implementation of Monitor
type noopMonitor struct{}

var _ Monitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ core.MessageID, _ core.Category) {}
func (n *noopMonitor) Skipped(_ string)                        {}
func (n *noopMonitor) AfterSearch(_ []core.ScoredEntry)        {}
func (n *noopMonitor) Finish(_ core.ContextResult)             {}
