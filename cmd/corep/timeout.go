package main

import (
	"context"
	"time"

	"github.com/DreamCats/corep/internal/retrieval"
)

// timeoutRetriever bounds each retrieval call with the configured deadline.
// The analyzer call that follows is not affected.
type timeoutRetriever struct {
	engine  *retrieval.Engine
	timeout time.Duration
}

func (r timeoutRetriever) Retrieve(ctx context.Context, query string, topK int, strategy retrieval.Strategy) []retrieval.Passage {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return r.engine.Retrieve(ctx, query, topK, strategy)
}
