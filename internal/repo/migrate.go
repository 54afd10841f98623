package repo

import (
	"database/sql"
	"embed"
	"io/fs"
	"path"
	"sort"
)

//go:embed migrations/*.sql
var Migrations embed.FS

// RunMigrations applies every .sql file under dir in lexical order.
// Each file must be idempotent.
func RunMigrations(db *sql.DB, fsys fs.FS, dir string) error {
	files, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return err
	}

	var sqlFiles []string
	for _, f := range files {
		if path.Ext(f.Name()) == ".sql" {
			sqlFiles = append(sqlFiles, f.Name())
		}
	}
	sort.Strings(sqlFiles)

	for _, file := range sqlFiles {
		content, err := fs.ReadFile(fsys, path.Join(dir, file))
		if err != nil {
			return err
		}
		if _, err := db.Exec(string(content)); err != nil {
			return err
		}
	}
	return nil
}
