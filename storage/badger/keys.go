package badger

import (
	"encoding/binary"
	"time"
)

// Key prefixes for different data types
const (
	batchPrefix        = "batch:"
	batchOrderPrefix   = "batchc:"
	episodePrefix      = "epis:"
	episodeOrderPrefix = "episb:"
	hashIndexPrefix    = "ephash:"
	vectorPrefix       = "vec:"
)

// vectorNamespaceSep terminates the namespace inside a vector key.
const vectorNamespaceSep = 0x00

// makeBatchKey generates a key for a batch by ID.
func makeBatchKey(id string) []byte {
	return []byte(batchPrefix + id)
}

// makeBatchOrderKey generates a composite key for the creation-order index.
// Format: prefix:timestamp:id
func makeBatchOrderKey(createdAt time.Time, id string) []byte {
	buf := make([]byte, 0, len(batchOrderPrefix)+8+len(id))
	buf = append(buf, batchOrderPrefix...)
	// BigEndian so lexicographic order matches time order
	buf = binary.BigEndian.AppendUint64(buf, uint64(createdAt.UnixMicro()))
	return append(buf, id...)
}

// makeEpisodeKey generates a key for an episode by ID.
func makeEpisodeKey(id string) []byte {
	return []byte(episodePrefix + id)
}

// makePartialEpisodeOrderKey generates the prefix shared by a batch's
// episode order keys.
// Format: prefix:batchID:
func makePartialEpisodeOrderKey(batchID string) []byte {
	return []byte(episodeOrderPrefix + batchID + ":")
}

// makeEpisodeOrderKey generates a composite key ordering episodes within a batch.
// Format: prefix:batchID:timestamp:episodeID
func makeEpisodeOrderKey(batchID string, createdAt time.Time, episodeID string) []byte {
	buf := makePartialEpisodeOrderKey(batchID)
	buf = binary.BigEndian.AppendUint64(buf, uint64(createdAt.UnixMicro()))
	return append(buf, episodeID...)
}

// makeHashKey generates a key for the content hash index.
func makeHashKey(contentHash string) []byte {
	return []byte(hashIndexPrefix + contentHash)
}

// makeVectorNamespacePrefix generates the prefix of every vector key in a namespace.
// Format: prefix:namespace\x00
func makeVectorNamespacePrefix(namespace string) []byte {
	buf := make([]byte, 0, len(vectorPrefix)+len(namespace)+1)
	buf = append(buf, vectorPrefix...)
	buf = append(buf, namespace...)
	return append(buf, vectorNamespaceSep)
}

// makeVectorKey generates a key for a vector in a namespace.
func makeVectorKey(namespace, id string) []byte {
	return append(makeVectorNamespacePrefix(namespace), id...)
}
