package command

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/urmzd/homai-gateway/internal/beeeon"
)

// Distributor is the outbound shipping seam: every technology manager calls
// it once a sample or a new device description is ready. The transport to
// the remote server is a deployment concern; LoggingDistributor is the
// stand-in a composition root wires by default.
type Distributor interface {
	ShipSample(ctx context.Context, data beeeon.SensorData) error
	ShipNewDevice(ctx context.Context, desc beeeon.DeviceDescription) error
}

// LoggingDistributor logs every shipment and never fails. It exists so the
// gateway runs end to end without a configured remote server.
type LoggingDistributor struct{}

func NewLoggingDistributor() *LoggingDistributor { return &LoggingDistributor{} }

func (d *LoggingDistributor) ShipSample(_ context.Context, data beeeon.SensorData) error {
	if !data.HasValues() {
		return nil
	}
	log.Info().
		Str("device", data.DeviceID.String()).
		Int("values", len(data.Values)).
		Msg("shipped sample")
	return nil
}

func (d *LoggingDistributor) ShipNewDevice(_ context.Context, desc beeeon.DeviceDescription) error {
	log.Info().
		Str("device", desc.DeviceID.String()).
		Str("vendor", desc.Vendor).
		Str("product", desc.Product).
		Int("modules", len(desc.Modules)).
		Msg("shipped new_device")
	return nil
}
