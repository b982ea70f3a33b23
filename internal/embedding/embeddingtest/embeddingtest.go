// Package embeddingtest provides a deterministic, offline embedder for tests.
package embeddingtest

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync/atomic"
	"unicode"
)

// Embedder hashes lowercase words into a fixed number of buckets. The last
// bucket is always set so no vector is ever zero. It satisfies langchaingo's
// embeddings.Embedder.
type Embedder struct {
	Dim int
	// Err, when set, is returned by every call.
	Err error

	documentCalls atomic.Int64
	queryCalls    atomic.Int64
}

func New(dim int) *Embedder {
	return &Embedder{Dim: dim}
}

// DocumentCalls counts EmbedDocuments invocations.
func (e *Embedder) DocumentCalls() int64 { return e.documentCalls.Load() }

// QueryCalls counts EmbedQuery invocations.
func (e *Embedder) QueryCalls() int64 { return e.queryCalls.Load() }

func (e *Embedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	e.documentCalls.Add(1)
	if e.Err != nil {
		return nil, e.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *Embedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	e.queryCalls.Add(1)
	if e.Err != nil {
		return nil, e.Err
	}
	return e.vector(text), nil
}

func (e *Embedder) vector(text string) []float32 {
	dim := e.Dim
	if dim < 2 {
		dim = 2
	}
	v := make([]float32, dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		v[int(h.Sum32()%uint32(dim-1))]++
	}
	v[dim-1] = 1
	return v
}

// ErrUnavailable is a ready-made failure for Err.
var ErrUnavailable = errors.New("embedding service unavailable")
