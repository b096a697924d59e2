// Package migrations embeds SQL migration files.
package migrations

import "embed"

// FS contiene las migraciones del esquema (pares *_up.sql / *_down.sql,
// aplicadas en orden ascendente de nombre).
//
//go:embed *.sql
var FS embed.FS
