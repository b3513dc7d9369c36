// Package migrations embeds the goose SQL migrations for each supported dialect.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed sqlite/*.sql postgres/*.sql
var files embed.FS

// SQLite returns the migrations for the SQLite dialect.
func SQLite() fs.FS {
	return mustSub("sqlite")
}

// Postgres returns the migrations for the PostgreSQL dialect.
func Postgres() fs.FS {
	return mustSub("postgres")
}

func mustSub(dir string) fs.FS {
	sub, err := fs.Sub(files, dir)
	if err != nil {
		panic("migrations: " + err.Error())
	}
	return sub
}
