// Package colpali embeds the ColPali page index in a Go program without the
// HTTP service: it feeds page embeddings into Vespa and runs ranked queries
// over them through an explicitly owned index handle.
//
//	client, _ := colpali.New(ctx, colpali.WithVespa("http://localhost:8080", ""))
//	defer client.Close()
//
//	report, _ := client.IndexDocument(ctx, colpali.Document{
//	    URL:   "https://example.com/report.pdf",
//	    Pages: []colpali.Page{{Text: "Intro", Patches: patches}},
//	})
//	hits, _ := client.Search(ctx, "revenue growth", queryTensor, colpali.SearchOptions{Hits: 3})
//
// Query text is embedded only when no tensor is supplied and a QueryEmbedder
// was configured with WithQueryEmbedder.
package colpali
