// Package unirio provides a client for the UNIRIO tabular data API. Tables are
// exposed as paths that accept GET for reads, POST for inserts, PUT for
// updates and DELETE for removals, while stored procedures are invoked under
// procedure/<name>. The Client builds each request from a Params map, injects
// the API key, and interprets the server's status codes and headers into
// typed outcomes (Result, Created, Updated, Deleted, ProcedureResult) or an
// *APIError that unwraps to one of the package's sentinel errors. Reads can be
// memoised through a Cache implementation such as pkg/cache/memory.
package unirio
