// Package testutil contains helper builders and utilities used across tests
// to reduce boilerplate when constructing trace events, session states and
// small stand-in nodes. They are not intended for production usage.
package testutil
