package isolation

import (
	"strings"

	"github.com/google/uuid"
)

func tablePrefix(id uuid.UUID) string  { return "tenant_" + id.String() + "_" }
func schemaName(id uuid.UUID) string   { return "tenant_" + id.String() }
func secureSchema(id uuid.UUID) string { return schemaName(id) + "_secure" }
func bucketName(id uuid.UUID) string   { return "tenant-" + id.String() }
func storagePath(id uuid.UUID) string  { return "tenants/" + id.String() }
func cachePrefix(id uuid.UUID) string  { return "tenant:" + id.String() + ":" }

// databaseName drops the dashes so the name needs no quoting in tools
// that take it unquoted.
func databaseName(id uuid.UUID) string {
	return "tenant_" + strings.ReplaceAll(id.String(), "-", "")
}
