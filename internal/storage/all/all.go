// Package all registers every layout storage backend and the SQL Server
// driver. Import it for side effects from commands.
package all

import (
	_ "github.com/microsoft/go-mssqldb"

	_ "headerprobe/internal/storage/mssql"
	_ "headerprobe/internal/storage/postgres"
	_ "headerprobe/internal/storage/sqlite"
)
