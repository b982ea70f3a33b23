package models

import "sort"

// Chunk represents a slice of the guidelines document with metadata
type Chunk struct {
	ID      string
	Content string
	Source  string
	ChunkID int
}

// Match is a chunk returned by a similarity search
type Match struct {
	ID         string
	Content    string
	Similarity float32
}

// SortMatches orders by similarity, breaking ties by ID so equal scores come
// back in the same order on every call.
func SortMatches(matches []Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].ID < matches[j].ID
	})
}
