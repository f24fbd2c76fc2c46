// Package arraystore stores dense multi-dimensional arrays as immutable
// fragments in a blob store and runs read and write queries against them.
//
// # Quick Start
//
//	ctx := context.Background()
//	store := blobstore.NewLocalStore("./data")
//	_ = arraystore.Create(ctx, store, "arrays/grid", s)
//	arr, _ := arraystore.Open(ctx, store, "arrays/grid")
//
// Cloud mode:
//
//	s3Store, _ := s3.New(ctx, "my-bucket", "arrays/", "eu-central-1")
//	arr, _ := arraystore.Open(ctx, s3Store, "grid", arraystore.WithBlockCache(64<<20, 0))
//
// # Writing
//
// Every ROW_MAJOR or COL_MAJOR write of a subarray becomes one fragment:
//
//	q, _ := arr.NewQuery(query.Write)
//	_ = q.SetSubarray([]int32{1, 2, 1, 4})
//	_ = q.SetBuffer("a1", []int32{1, 2, 3, 4, 5, 6, 7, 8})
//	_ = arr.Submit(ctx, q)
//
// A GLOBAL_ORDER write accumulates cells in the schema cell order across
// Submit calls and writes its fragment on Finalize.
//
// # Reading
//
// Reads combine all fragments; the newest fragment that covers a cell
// wins, and cells no fragment covers read as zero (or empty for
// variable-length attributes):
//
//	q, _ := arr.NewQuery(query.Read)
//	a1 := make([]int32, 16)
//	_ = q.SetBuffer("a1", a1)
//	_ = arr.Submit(ctx, q)
//	for q.Status() == query.Incomplete {
//	    // consume a1[:n] where n, _, _ := q.ResultSize("a1")
//	    _ = arr.Submit(ctx, q)
//	}
//
// # Remote Execution
//
// A client serializes a query with query.Serialize and sends the bytes to
// a server holding the array, which answers with ServeQuery. The client
// merges the answer into its bound buffers with query.Deserialize.
//
// # Observability
//
// Logging uses log/slog through Logger (WithLogger, WithLogLevel). Metrics
// go to a MetricsCollector (WithMetricsCollector); PrometheusCollector
// exports them with prometheus/client_golang.
package arraystore
