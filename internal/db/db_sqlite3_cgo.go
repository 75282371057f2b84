//go:build cgo && sqlite3_cgo

package db

import (
	_ "github.com/mattn/go-sqlite3"
)

// driverID names the SQLite implementation in logs.
const (
	driverID   = "mattn/go-sqlite3"
	driverName = "sqlite3"
)
