// Package debugsql wraps database/sql drivers so that every executed
// statement, together with its bound parameters and execution time, is
// published as a query-executed notification.
//
// Notifications carry the context the statement was run with, which lets
// subscribers attribute them to the HTTP request that issued them.
package debugsql
