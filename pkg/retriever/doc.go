// Package retriever embeds the retrieval engine in another Go program.
//
// A Client indexes documents into a directory on disk and answers questions
// with ranked passages:
//
//	client, _ := retriever.New(
//	    retriever.WithIndexDir("data/index"),
//	    retriever.WithOpenAI(os.Getenv("OPENAI_API_KEY"), "text-embedding-3-small"),
//	)
////
//	report, _ := client.Rebuild(ctx,
//	    retriever.Source{Type: retriever.SourcePDF, Location: "docs/pool-rules.pdf", Label: "pool-rules"},
//	    retriever.Source{Type: retriever.SourceWeb, Location: "https://example.com/hours", Label: "hours"},
//	)
//	results, _ := client.Query(ctx, "When does the pool close?", 3, 0.35)
//
// Rebuilds replace the whole index atomically; queries keep being served
// from the previous index while a rebuild runs.
package retriever
