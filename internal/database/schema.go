package database

import _ "embed"

// Schema is the fully migrated schema, regenerated from the migration files
// by tools/generate_schema.go. Tests apply it directly to skip migrations.
//
//go:embed schema.sql
var Schema string
