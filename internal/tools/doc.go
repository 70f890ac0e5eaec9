// Package tools defines self-describing tool registries and the two built-in
// servers backed by them: a code server answering semantic questions about an
// ingested codebase, and a file server exposing read-only filesystem access
// to its working copy. A bridge exposes any registry over the MCP stdio
// protocol.
package tools
