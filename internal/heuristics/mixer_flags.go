package heuristics

import (
	"strings"

	"github.com/rawblock/token-forensics-engine/internal/config"
	"github.com/rawblock/token-forensics-engine/pkg/models"
)

// Mixer flagging checks top-holder addresses against the known mixer
// set. Every checked address gets a flag entry, hit or not; the mixer
// risk component is the hit ratio over that list. Only exact address
// matches count, one-hop proximity to a mixer is not traced.

const tornadoCashLabel = "Tornado Cash"

// CheckMixerFlags returns one flag per input address, preserving order.
func CheckMixerFlags(cfg *config.Config, addresses []string) []models.MixerFlag {
	flags := make([]models.MixerFlag, 0, len(addresses))
	for _, addr := range addresses {
		isMixer := cfg.KnownMixers[strings.ToLower(addr)]
		var mixerType *string
		if isMixer {
			label := tornadoCashLabel
			mixerType = &label
		}
		flags = append(flags, models.MixerFlag{
			Address:   addr,
			IsMixer:   isMixer,
			MixerType: mixerType,
		})
	}
	return flags
}
