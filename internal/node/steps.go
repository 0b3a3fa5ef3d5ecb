package node

import (
	"context"

	"github.com/nerrad567/gray-logic-dvb/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-dvb/internal/topology"
)

// Step names registered by Catalogue.
const (
	StepDVBStreamer = "dvb-streamer"
)

// Catalogue returns the upgrade steps a DVB node provides to topology
// documents, configured from the instance section of cfg.
func Catalogue(cfg config.InstanceConfig) *topology.Catalogue {
	c := topology.NewCatalogue()
	c.MustRegister(DVBStreamerStep(cfg.Multicast))
	return c
}

// DVBStreamerStep adds the "dvbstreamer" entry controlling a DVBlast
// process. When mcast is enabled the entry streams into that multicast pool.
func DVBStreamerStep(mcast config.MulticastConfig) topology.Step {
	return topology.NewStep(StepDVBStreamer, func(_ context.Context, tx *topology.Tx) error {
		attrs := map[string]any{"name": "DVBlast"}
		if mcast.Enabled() {
			attrs["mcast"] = map[string]any{"id": mcast.ID, "alias": mcast.Alias}
		}
		_, err := tx.AddEntry("dvbstreamer", "dvblast", attrs)
		return err
	})
}
