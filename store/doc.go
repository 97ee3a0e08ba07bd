// Package store provides core.SessionStore implementations: a volatile
// in-memory store for tests and ephemeral deployments, and a SQLite-backed
// store that survives restarts so pending report deliveries can resume.
package store
