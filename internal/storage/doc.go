// Package storage reads capture databases directly.
//
// Two backends implement Store:
//   - SQLiteStore: the local capture file (default ~/.memos/database.db),
//     opened read-only in production. It serves the fallback search path
//     when the Pensieve service is unreachable.
//   - PostgresStore: a capture database hosted on PostgreSQL. With the
//     pgvector extension it also implements VectorStore and ranks
//     embeddings inside the database.
//
// Both stores share one SQL builder, so keyword matching and filtering
// behave the same way regardless of backend. Keyword queries match any
// word of the query, case-insensitively, against the window title, OCR
// text and task metadata, newest first.
//
// # Build Tags
//
// CGO Build (sqlite_vec tag) uses github.com/mattn/go-sqlite3:
//
//	CGO_ENABLED=1 go build -tags "sqlite_vec"
//
// Pure Go Build (default, or purego tag) uses modernc.org/sqlite:
//
//	CGO_ENABLED=0 go build -tags "purego"
//
// # Embeddings
//
// Stored embeddings are either a JSON array of numbers or base64 of a
// little-endian float32 blob; ParseEmbedding accepts both.
package storage
