// Package migrations embeds the goose schema files, one directory per dialect.
package migrations

import "embed"

//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS

// Dir returns the directory holding the files for a configured driver.
func Dir(driver string) string {
	if driver == "sqlite" {
		return "sqlite"
	}
	return "postgres"
}
