package workflow

import (
	"context"
	"sort"
)

// runValidator applies the guardrail policy and the DevOps topic check.
// It runs unconditionally first and has no side effects beyond state.
func (e *Engine) runValidator(ctx context.Context, st *State) error {
	if blocked, rule := e.guard.Check(st.RawText); blocked {
		st.Blocked = true
		st.BlockReason = rule
		st.FinalAnswer = BlockedMessage
		e.logger.Printf("guardrail blocked query (rule %q)", rule)
		return nil
	}
	st.IsDevOps = e.guard.IsDevOps(st.RawText)
	return nil
}

// runNonDevOps produces the fixed off-topic message. Always terminal.
func (e *Engine) runNonDevOps(ctx context.Context, st *State) error {
	st.FinalAnswer = NonDevOpsMessage
	return nil
}

// runEvaluator classifies the query and reframes it for retrieval/search.
// Both results are required to route forward; a provider failure here is
// fatal, there is no safe default.
func (e *Engine) runEvaluator(ctx context.Context, st *State) error {
	var cls Classification
	err := e.callProvider(ctx, func(cctx context.Context) error {
		var cerr error
		cls, cerr = e.reasoner.Classify(cctx, st.RawText)
		return cerr
	})
	if err != nil {
		if e.metrics != nil {
			e.metrics.ProviderFailures.WithLabelValues("reasoning").Inc()
		}
		return fatal(ErrClassificationFailure, NodeEvaluator, err)
	}
	// Anything the provider could not firmly call "debug" takes the
	// general path.
	if cls != ClassificationDebug {
		cls = ClassificationGeneral
	}
	st.Classification = cls

	var reframed string
	err = e.callProvider(ctx, func(cctx context.Context) error {
		var rerr error
		reframed, rerr = e.reasoner.Reframe(cctx, st.RawText)
		return rerr
	})
	if err != nil {
		if e.metrics != nil {
			e.metrics.ProviderFailures.WithLabelValues("reasoning").Inc()
		}
		return fatal(ErrClassificationFailure, NodeEvaluator, err)
	}
	st.ReframedText = reframed
	return nil
}

// runRetriever fetches top-K ranked snippets from the corpus. An empty
// result set is a valid outcome and a corpus error only degrades: the
// workflow continues with no documents.
func (e *Engine) runRetriever(ctx context.Context, st *State) error {
	var docs []RetrievedDoc
	err := e.callProvider(ctx, func(cctx context.Context) error {
		var serr error
		docs, serr = e.corpus.Search(cctx, st.queryText(), e.topK)
		return serr
	})
	if err != nil {
		if e.metrics != nil {
			e.metrics.ProviderFailures.WithLabelValues("corpus").Inc()
		}
		e.logger.Printf("corpus retrieval failed, continuing without documents: %v", err)
		docs = nil
	}
	st.RetrievedDocs = docs
	return nil
}

// runSearch queries the web search provider. Provider failures flag
// searchFailed and the workflow continues with partial context.
func (e *Engine) runSearch(ctx context.Context, st *State) error {
	var results []SearchResult
	err := e.callProvider(ctx, func(cctx context.Context) error {
		var serr error
		results, serr = e.search.Search(cctx, st.queryText())
		return serr
	})
	if err != nil {
		st.SearchFailed = true
		st.SearchResults = nil
		if e.metrics != nil {
			e.metrics.ProviderFailures.WithLabelValues("websearch").Inc()
		}
		e.logger.Printf("web search failed, continuing without results: %v", err)
		return nil
	}
	st.SearchResults = results
	return nil
}

// runSynthesizer combines retrieved documents and search results into the
// final answer. Provenance ordering is deterministic: documents by
// descending score (stable on retrieval order), then search results in
// provider order.
func (e *Engine) runSynthesizer(ctx context.Context, st *State) error {
	docs := append([]RetrievedDoc(nil), st.RetrievedDocs...)
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].Score > docs[j].Score })

	req := SynthesisRequest{
		Question:      st.queryText(),
		RetrievedDocs: docs,
		SearchResults: st.SearchResults,
		SearchFailed:  st.SearchFailed,
	}
	var answer string
	err := e.callProvider(ctx, func(cctx context.Context) error {
		var serr error
		answer, serr = e.reasoner.Synthesize(cctx, req)
		return serr
	})
	if err != nil {
		if e.metrics != nil {
			e.metrics.ProviderFailures.WithLabelValues("reasoning").Inc()
		}
		return fatal(ErrSynthesisFailure, NodeSynthesizer, err)
	}

	st.FinalAnswer = answer
	st.Provenance = make([]SourceRef, 0, len(docs)+len(st.SearchResults))
	for _, d := range docs {
		st.Provenance = append(st.Provenance, SourceRef{Kind: "document", ID: d.ID, Title: d.Title})
	}
	for _, r := range st.SearchResults {
		st.Provenance = append(st.Provenance, SourceRef{Kind: "web", Title: r.Title, Link: r.Link})
	}
	return nil
}
