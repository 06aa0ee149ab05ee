// Package testutil contains helper builders used across tests to reduce
// boilerplate when constructing grants, evaluations and vote sequences. They
// are not intended for production usage.
package testutil
