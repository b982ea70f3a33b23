package helper

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

// chunkNamespace scopes chunk document IDs so they never collide with other SHA-1 UUIDs.
var chunkNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("aqi-advisory/guideline-chunk"))

// ChunkDocumentID derives a stable ID for the n-th chunk of a source document.
// Rebuilding an index from the same document yields the same IDs.
func ChunkDocumentID(source string, n int, content string) string {
	return uuid.NewSHA1(chunkNamespace, []byte(fmt.Sprintf("%s#%d\x00%s", source, n, content))).String()
}

// CreateFolder creates path and its parents if missing
func CreateFolder(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("failed to create folder %s: %w", path, err)
	}
	return nil
}
