// Package embedder turns query text into vectors for similarity search.
//
// Two providers implement Embedder:
//   - openai: the OpenAI embeddings API through go-openai, with retry and
//     a dimension check on every response
//   - local: deterministic feature hashing, no network or model needed
//
// Both share an LRU Cache keyed by provider, model and text.
//
//	emb, err := embedder.New(embedder.Config{Provider: "openai", APIKey: key, CacheSize: 1000})
//	if err != nil {
//	    return err
//	}
//	vec, err := emb.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: "python coding"})
package embedder
