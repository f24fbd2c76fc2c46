// Package query coordinates read and write queries against an array.
//
// A Query binds caller memory to attributes, validates a subarray against the
// array domain, and drives a Reader or Writer strategy through its lifecycle:
//
//	UNINITIALIZED --Init--> INPROGRESS --Process--> COMPLETED | INCOMPLETE | FAILED
//
// INCOMPLETE reads resume with another Process call. Finalize flushes
// global-order writes; Cancel forces FAILED from any state.
//
// # Wire form
//
// ToMessage and FromMessage convert a query to and from a wire.Query so a
// remote peer can execute it. FromMessage merges into buffers that are
// already bound: a client binds result buffers, sends the query, and applies
// the server's response, which copies the results into the client's memory.
//
//	q, _ := query.New(query.Read, s, query.WithReader(r))
//	_ = q.SetSubarray([]int64{1, 4})
//	_ = q.SetBuffer("a1", make([]int32, 4))
//	req, _ := query.Serialize(q, codec.Default)
//	resp := send(req)
//	err := query.Deserialize(q, codec.Default, resp)
//
// Errors are classified by the kinds ErrConfiguration, ErrValidation,
// ErrState, ErrSizeMismatch, ErrDecode and ErrIO.
package query
