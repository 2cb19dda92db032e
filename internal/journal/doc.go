// Package journal persists the terminal result of every executed agent request
// to the agent_results table. Cache hits and rejected requests are not journaled.
//
// PostgreSQL and MySQL schemas come from internal/migration; SQLite uses AutoMigrate.
package journal
