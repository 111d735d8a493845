// Package all links every storage backend and the SQL Server driver.
// Import it for side effects from a main package.
package all

import (
	_ "cuiregistry/internal/storage/mssql"
	_ "cuiregistry/internal/storage/postgres"
	_ "cuiregistry/internal/storage/sqlite"

	_ "github.com/microsoft/go-mssqldb"
)
