package persistence

import (
	"fmt"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
)

// EnableTracing registers the otelgorm plugin so every query becomes a span.
// Query parameters are left out of span attributes.
func (d *Database) EnableTracing() error {
	plugin := otelgorm.NewPlugin(
		otelgorm.WithDBName(d.driver),
		otelgorm.WithoutQueryVariables(),
	)
	if err := d.DB.Use(plugin); err != nil {
		return fmt.Errorf("failed to register database tracing: %w", err)
	}
	return nil
}
