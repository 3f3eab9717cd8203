package memory

import (
	"context"
	"math"
	"sort"

	"go.uber.org/zap"
)

// Search embeds the query and ranks stored records by cosine
// similarity, optionally rescored by the rerank endpoint. An embedding
// failure yields an empty result, never an error; a rerank failure
// falls back to the cosine order.
func (s *Store) Search(ctx context.Context, query string, limit int, minSimilarity float64) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 5
	}
	if minSimilarity == 0 {
		minSimilarity = DefaultMinSimilarity
	}
	if s.embedder == nil {
		return nil, nil
	}

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil || len(vectors) == 0 {
		if s.logger != nil {
			s.logger.Warn("query embedding failed", zap.Error(err))
		}
		return nil, nil
	}
	queryVec := vectors[0]

	all, err := s.List(ctx, "")
	if err != nil {
		return nil, err
	}

	candidates := make([]SearchResult, 0, len(all))
	for _, m := range all {
		if len(m.Embedding) == 0 {
			continue
		}
		sim := cosineSimilarity(queryVec, m.Embedding)
		if sim >= minSimilarity {
			candidates = append(candidates, SearchResult{Memory: m, Similarity: sim})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Similarity > candidates[j].Similarity
	})
	if len(candidates) > candidateCap {
		candidates = candidates[:candidateCap]
	}

	if s.reranker != nil && len(candidates) > 0 {
		if reranked, ok := s.rerank(ctx, query, candidates, limit); ok {
			return reranked, nil
		}
	}

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

func (s *Store) rerank(ctx context.Context, query string, candidates []SearchResult, limit int) ([]SearchResult, bool) {
	documents := make([]string, len(candidates))
	for i, c := range candidates {
		documents[i] = c.Memory.Content
	}
	results, err := s.reranker.Rerank(ctx, query, documents, limit)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("rerank failed, using cosine order", zap.Error(err))
		}
		return nil, false
	}

	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(candidates) {
			continue
		}
		out = append(out, SearchResult{Memory: candidates[r.Index].Memory, Similarity: r.Score})
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, true
}

// cosineSimilarity returns dot(a,b)/(|a||b|). Mismatched dimensions and
// zero-norm vectors score 0, never NaN.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
