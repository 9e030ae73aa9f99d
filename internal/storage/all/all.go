// Package all links every sink backend into the binary.
package all

import (
	_ "harvest/internal/storage/ingest"
	_ "harvest/internal/storage/jsonl"
	_ "harvest/internal/storage/mssql"
	_ "harvest/internal/storage/postgres"
	_ "harvest/internal/storage/sqlite"
)
