package capture

import (
	"context"
	"log/slog"

	"github.com/cepro/weighcapture/telemetry"
)

// DefaultOperator is recorded against calibrations that were not performed by a named operator.
const DefaultOperator = "system"

type operatorKey struct{}

// WithOperator returns a context that records who is performing an operation, e.g. a calibration.
func WithOperator(ctx context.Context, operator string) context.Context {
	return context.WithValue(ctx, operatorKey{}, operator)
}

// PerformedBy returns the operator recorded on the context, or `fallback` if there is none.
func PerformedBy(ctx context.Context, fallback string) string {
	if operator, ok := ctx.Value(operatorKey{}).(string); ok && operator != "" {
		return operator
	}
	if fallback != "" {
		return fallback
	}
	return DefaultOperator
}

// LocationSource supplies the location at which a reading is being captured.
type LocationSource interface {
	Location(ctx context.Context) (*telemetry.GeoLocation, error)
}

// StaticLocation is a LocationSource for a weighing site that does not move.
type StaticLocation telemetry.GeoLocation

func (s StaticLocation) Location(ctx context.Context) (*telemetry.GeoLocation, error) {
	l := telemetry.GeoLocation(s)
	return &l, nil
}

// Locate asks the source for a location. A missing source or a failed lookup is tolerated and gives nil.
func Locate(ctx context.Context, source LocationSource, logger *slog.Logger) *telemetry.GeoLocation {
	if source == nil {
		return nil
	}
	location, err := source.Location(ctx)
	if err != nil {
		logger.Debug("Failed to get location", "error", err)
		return nil
	}
	return location
}
