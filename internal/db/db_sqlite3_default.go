//go:build !sqlite3_cgo

package db

import (
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// driverID names the SQLite implementation in logs. The default driver is pure Go
// (wasm), so builds need no C toolchain.
const (
	driverID   = "ncruces/go-sqlite3"
	driverName = "sqlite3"
)
