package domain

// KeyPrefix namespaces every key this service writes to the store.
const KeyPrefix = "pdfbrain:"

// Store key layout.
const (
	// ChunkKeyPrefix prefixes chunk hashes: pdfbrain:chunk:<document>:<index>.
	ChunkKeyPrefix = KeyPrefix + "chunk:"
	// ChunkIndex is the FT index over chunk hashes.
	ChunkIndex = KeyPrefix + "chunks:idx"
	// SummaryKeyPrefix prefixes summary hashes: pdfbrain:summary:<level>:<cluster>.
	SummaryKeyPrefix = KeyPrefix + "summary:"
	// SummaryIndex is the FT index over summary hashes.
	SummaryIndex = KeyPrefix + "summaries:idx"
	// MembershipKeyPrefix prefixes per-chunk cluster membership hashes.
	MembershipKeyPrefix = KeyPrefix + "membership:"
	// EmbeddingCachePrefix prefixes cached vectors: pdfbrain:emb:<model>:<sha256>.
	EmbeddingCachePrefix = KeyPrefix + "emb:"
	// LatestRunKey holds the JSON document of the most recent clustering run.
	LatestRunKey = KeyPrefix + "cluster_run:latest"
)
