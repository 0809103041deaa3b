// Package testutil contains helper builders used across tests to reduce
// boilerplate when constructing patient cases and transcripts. They are not
// intended for production usage.
package testutil
