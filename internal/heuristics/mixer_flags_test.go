package heuristics

import (
	"testing"

	"github.com/rawblock/token-forensics-engine/internal/config"
)

func TestCheckMixerFlags(t *testing.T) {
	addresses := []string{
		"0x12D66F87A04A9E220743712CE6D9BB1B5616B8FC", // Tornado Cash, checksum case
		"0xabc0000000000000000000000000000000000001",
		"0x910cbd523d972eb0a6f4cae4618ad62622b39dbf", // Tornado Cash
	}

	flags := CheckMixerFlags(config.Load(), addresses)

	if len(flags) != 3 {
		t.Fatalf("Expected one flag per address. Got: %d", len(flags))
	}
	for i, f := range flags {
		if f.Address != addresses[i] {
			t.Errorf("Expected input order preserved at %d. Got: %s", i, f.Address)
		}
	}

	if !flags[0].IsMixer {
		t.Error("Expected checksum-cased mixer address matched")
	}
	if flags[0].MixerType == nil || *flags[0].MixerType != "Tornado Cash" {
		t.Errorf("Expected Tornado Cash label. Got: %v", flags[0].MixerType)
	}
	if flags[1].IsMixer || flags[1].MixerType != nil {
		t.Errorf("Expected clean address unflagged. Got: %+v", flags[1])
	}
	if !flags[2].IsMixer {
		t.Error("Expected second mixer address matched")
	}
}

func TestCheckMixerFlags_Empty(t *testing.T) {
	if flags := CheckMixerFlags(config.Load(), nil); len(flags) != 0 {
		t.Errorf("Expected no flags for no addresses. Got: %d", len(flags))
	}
}
