package storage

import (
	"fmt"
	"strings"

	"github.com/xo/dburl"
)

// ResolveDSN maps a database URL to a backend kind and the DSN the backend's
// driver expects.
//
// Recognized URL schemes follow dburl: postgres://, pg://, pgx://,
// sqlserver://, mssql://, sqlite:, sqlite3: and moderncsqlite:.
//
// Errors:
//   - Returns an error for an empty DSN, an unparseable URL, or a database
//     that has no layout backend.
func ResolveDSN(dsn string) (kind, driverDSN string, err error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return "", "", fmt.Errorf("storage: empty dsn")
	}

	u, err := dburl.Parse(dsn)
	if err != nil {
		return "", "", fmt.Errorf("storage: parse dsn: %w", err)
	}

	kind, err = kindForDriver(u.Driver)
	if err != nil {
		return "", "", err
	}
	return kind, u.DSN, nil
}

// KindFromDSN returns only the backend kind of ResolveDSN.
func KindFromDSN(dsn string) (string, error) {
	kind, _, err := ResolveDSN(dsn)
	return kind, err
}

func kindForDriver(driver string) (string, error) {
	switch driver {
	case "postgres", "pgx":
		return "postgres", nil
	case "sqlserver":
		return "mssql", nil
	case "sqlite3", "sqlite", "moderncsqlite":
		return "sqlite", nil
	default:
		return "", fmt.Errorf("storage: no layout backend for driver %q", driver)
	}
}
