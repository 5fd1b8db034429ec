// Package mock provides test doubles for the ai package interfaces.
//
// # Usage
//
//	gen := mock.NewMockCompleter().
//	    WithCompleteFunc(func(ctx context.Context, system, user string) (string, error) {
//	        return `[{"text": "Listen before you answer.", "content_type": "advice"}]`, nil
//	    })
//	provider := mock.NewMockProvider(mock.WithGenerator(gen))
//
//	// Check call counts
//	count := gen.CallCount()
//
// # Default Behavior
//
//   - MockEmbedder: returns deterministic unit vectors based on text hash
//   - MockCompleter: echoes the user message
//   - MockProvider: aggregates a mock embedder, generator and classifier
package mock
