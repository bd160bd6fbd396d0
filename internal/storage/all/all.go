// Package all registers every storage backend. Import it for side effects.
package all

import (
	_ "ratesheet/internal/storage/mssql"
	_ "ratesheet/internal/storage/postgres"
	_ "ratesheet/internal/storage/sqlite"
)
