// Package orchestrator runs chat turns against an ingested codebase:
// receive, plan, retrieve, generate, finalize. A rule-based planner routes
// questions either through the codebase tool servers or straight to vector
// retrieval, the generator streams the answer, and the finished turn is
// appended to the session.
package orchestrator
