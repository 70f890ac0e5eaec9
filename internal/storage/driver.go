package storage

// The pure Go SQLite driver keeps the binary CGO-free and cross-compilable.
import (
	_ "modernc.org/sqlite"
)

// DriverName is the database/sql driver to open.
const DriverName = "sqlite"
