// Package pinecone implements storage.VectorStore over the Pinecone REST
// data plane. Client errors other than 429 are marked permanent so retry
// policies give up on them immediately.
package pinecone
