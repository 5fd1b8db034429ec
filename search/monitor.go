package search

// Monitor observes the stages of a query. Useful for tracing and tests.
type Monitor interface {
	Start(query string, namespaces []string)
	AfterEmbedding(dimension int)
	AfterNamespaceQuery(namespace string, matches int)
	Finish(results []Result)
}

type noopMonitor struct{}

var _ Monitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string, _ []string)          {}
func (n *noopMonitor) AfterEmbedding(_ int)                {}
func (n *noopMonitor) AfterNamespaceQuery(_ string, _ int) {}
func (n *noopMonitor) Finish(_ []Result)                   {}
