package backend

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/vecbench/internal/models"
)

// Types lists the supported backend types.
func Types() []string {
	return []string{TypeMemory, TypePgvector, TypeQdrant, TypeWeaviate}
}

// New creates a backend of the given type.
// Supported types: "memory", "qdrant", "weaviate", "pgvector".
func New(typ string, conn Connection, logger *zap.Logger) (Backend, error) {
	switch strings.ToLower(typ) {
	case TypeMemory:
		return NewMemory(logger), nil
	case TypeQdrant:
		return NewQdrant(conn, logger), nil
	case TypeWeaviate:
		return NewWeaviate(conn, logger), nil
	case TypePgvector, "postgres":
		return NewPgvector(conn, logger), nil
	default:
		return nil, fmt.Errorf("%w: unknown backend type %q (supported: %s)",
			models.ErrConfigRejected, typ, strings.Join(Types(), ", "))
	}
}
