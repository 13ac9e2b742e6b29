package lorawan

import "fmt"

// CN470Mode selects which of the three CN470 duplexing schemes is in use.
type CN470Mode string

const (
	CN470StandardFDD CN470Mode = "STANDARD_FDD" // uplink 470MHz, downlink 500MHz
	CN470CustomFDD   CN470Mode = "CUSTOM_FDD"   // split within 470-490MHz
	CN470TDD         CN470Mode = "TDD"          // time-division within 470-490MHz
)

// RegionConfiguration represents region-specific configuration
type RegionConfiguration struct {
	Name                string
	DefaultChannels     []Channel
	DataRates           []DataRate
	MaxPayloadSizePerDR map[int]int
	RX1DROffsetTable    map[int]map[int]int
	DefaultRX2DR        int
	DefaultRX2Freq      uint32
	FrequencyPlan       string
	ChannelPlan         ChannelPlan
}

// ChannelPlan describes how many channels a region exposes.
type ChannelPlan struct {
	UplinkChannels   int
	DownlinkChannels int
	ChannelsPerPage  int // CN470-specific: channels grouped per NewChannelReq page
}

// Channel represents a LoRa channel
type Channel struct {
	Frequency uint32
	MinDR     int
	MaxDR     int
}

// DataRate represents a data rate configuration
type DataRate struct {
	SpreadFactor int
	Bandwidth    int
	BitRate      int
}

// GetRegionConfiguration returns configuration for a region
func GetRegionConfiguration(region string) *RegionConfiguration {
	switch region {
	case "EU868":
		return &EU868Configuration
	case "US915":
		return &US915Configuration
	case "CN470", "CN470_510":
		return &CN470Configuration
	default:
		return &EU868Configuration
	}
}

// EU868Configuration for EU 868MHz band
var EU868Configuration = RegionConfiguration{
	Name: "EU868",
	DefaultChannels: []Channel{
		{Frequency: 868100000, MinDR: 0, MaxDR: 5},
		{Frequency: 868300000, MinDR: 0, MaxDR: 5},
		{Frequency: 868500000, MinDR: 0, MaxDR: 5},
	},
	DataRates: []DataRate{
		{SpreadFactor: 12, Bandwidth: 125}, // DR0
		{SpreadFactor: 11, Bandwidth: 125}, // DR1
		{SpreadFactor: 10, Bandwidth: 125}, // DR2
		{SpreadFactor: 9, Bandwidth: 125},  // DR3
		{SpreadFactor: 8, Bandwidth: 125},  // DR4
		{SpreadFactor: 7, Bandwidth: 125},  // DR5
		{SpreadFactor: 7, Bandwidth: 250},  // DR6
	},
	MaxPayloadSizePerDR: map[int]int{
		0: 51,
		1: 51,
		2: 51,
		3: 115,
		4: 242,
		5: 242,
		6: 242,
	},
	RX1DROffsetTable: map[int]map[int]int{
		0: {0: 0, 1: 0, 2: 0, 3: 0, 4: 0, 5: 0},
		1: {0: 1, 1: 0, 2: 0, 3: 0, 4: 0, 5: 0},
		2: {0: 2, 1: 1, 2: 0, 3: 0, 4: 0, 5: 0},
		3: {0: 3, 1: 2, 2: 1, 3: 0, 4: 0, 5: 0},
		4: {0: 4, 1: 3, 2: 2, 3: 1, 4: 0, 5: 0},
		5: {0: 5, 1: 4, 2: 3, 3: 2, 4: 1, 5: 0},
	},
	DefaultRX2DR:   0,
	DefaultRX2Freq: 869525000,
}

// US915Configuration for US 915MHz band
var US915Configuration = RegionConfiguration{
	Name: "US915",
	DefaultChannels: []Channel{
		// US915 has 72 channels (64 uplink + 8 downlink); simplified here.
	},
	DataRates: []DataRate{
		{SpreadFactor: 10, Bandwidth: 125}, // DR0
		{SpreadFactor: 9, Bandwidth: 125},  // DR1
		{SpreadFactor: 8, Bandwidth: 125},  // DR2
		{SpreadFactor: 7, Bandwidth: 125},  // DR3
		{SpreadFactor: 8, Bandwidth: 500},  // DR4
	},
	MaxPayloadSizePerDR: map[int]int{
		0: 11,
		1: 53,
		2: 125,
		3: 242,
		4: 242,
	},
	DefaultRX2DR:   8,
	DefaultRX2Freq: 923300000,
}

// CN470Configuration for China 470-490MHz band (multi-mode support)
var CN470Configuration = RegionConfiguration{
	Name:          "CN470",
	FrequencyPlan: "CN470-FLEXIBLE",
	ChannelPlan: ChannelPlan{
		UplinkChannels:   96,
		DownlinkChannels: 48, // or 96 in TDD mode
		ChannelsPerPage:  16,
	},
	DefaultChannels: generateCN470FlexibleChannels(),
	DataRates: []DataRate{
		{SpreadFactor: 12, Bandwidth: 125}, // DR0
		{SpreadFactor: 11, Bandwidth: 125}, // DR1
		{SpreadFactor: 10, Bandwidth: 125}, // DR2
		{SpreadFactor: 9, Bandwidth: 125},  // DR3
		{SpreadFactor: 8, Bandwidth: 125},  // DR4
		{SpreadFactor: 7, Bandwidth: 125},  // DR5
	},
	MaxPayloadSizePerDR: map[int]int{
		0: 51, 1: 51, 2: 51, 3: 115, 4: 222, 5: 222,
	},
	RX1DROffsetTable: map[int]map[int]int{
		0: {0: 0, 1: 0, 2: 0, 3: 0, 4: 0, 5: 0},
		1: {0: 1, 1: 0, 2: 0, 3: 0, 4: 0, 5: 0},
		2: {0: 2, 1: 1, 2: 0, 3: 0, 4: 0, 5: 0},
		3: {0: 3, 1: 2, 2: 1, 3: 0, 4: 0, 5: 0},
		4: {0: 4, 1: 3, 2: 2, 3: 1, 4: 0, 5: 0},
		5: {0: 5, 1: 4, 2: 3, 3: 2, 4: 1, 5: 0},
	},
	DefaultRX2DR:   0,
	DefaultRX2Freq: 480300000, // custom-FDD RX2 frequency by default
}

// generateCN470FlexibleChannels builds the default 16-channel set shared by
// all three CN470 modes.
func generateCN470FlexibleChannels() []Channel {
	channels := make([]Channel, 0, 16)
	baseFreq := uint32(470300000)

	for i := 0; i < 16; i++ {
		freq := baseFreq + uint32(i*200000)
		if freq >= 470000000 && freq <= 490000000 {
			channels = append(channels, Channel{
				Frequency: freq,
				MinDR:     0,
				MaxDR:     5,
			})
		}
	}

	return channels
}

// GetRX1DataRateOffset calculates RX1 data rate
func (r *RegionConfiguration) GetRX1DataRateOffset(uplinkDR, rx1DROffset uint8) (uint8, error) {
	if r.RX1DROffsetTable != nil {
		if drMap, ok := r.RX1DROffsetTable[int(uplinkDR)]; ok {
			if dr, ok := drMap[int(rx1DROffset)]; ok {
				return uint8(dr), nil
			}
		}
	}

	dr := int(uplinkDR) - int(rx1DROffset)
	if dr < 0 {
		dr = 0
	}
	return uint8(dr), nil
}

// GetCN470DownlinkFrequency computes the RX1 downlink frequency for an
// uplink frequency, given the active CN470 mode.
func (r *RegionConfiguration) GetCN470DownlinkFrequency(uplinkFreq uint32, mode CN470Mode) uint32 {
	if r.Name != "CN470" {
		return 0
	}

	switch mode {
	case CN470StandardFDD:
		downlinkFreq := uplinkFreq + 30000000
		if downlinkFreq >= 500300000 && downlinkFreq <= 509700000 {
			return downlinkFreq
		}
		return r.DefaultRX2Freq

	case CN470CustomFDD:
		downlinkFreq := uplinkFreq + 10000000
		if downlinkFreq >= 470000000 && downlinkFreq <= 490000000 {
			return downlinkFreq
		}
		return r.DefaultRX2Freq

	case CN470TDD:
		if uplinkFreq >= 470000000 && uplinkFreq <= 490000000 {
			return uplinkFreq
		}
		return r.DefaultRX2Freq

	default:
		return r.DefaultRX2Freq
	}
}

// GetCN470ChannelPlan returns the 16-channel page for a given sub-band.
func GetCN470ChannelPlan(subBand int) []Channel {
	if subBand < 0 || subBand > 5 {
		subBand = 0
	}

	channels := make([]Channel, 16)
	baseFreq := uint32(470300000 + subBand*16*200000)

	for i := 0; i < 16; i++ {
		channels[i] = Channel{
			Frequency: baseFreq + uint32(i*200000),
			MinDR:     0,
			MaxDR:     5,
		}
	}

	return channels
}

// GetCN470ModeForHardware recommends a CN470Mode from radio capability flags.
func GetCN470ModeForHardware(supportsTX500MHz bool, supportsTX470_490MHz bool) CN470Mode {
	if supportsTX500MHz {
		return CN470StandardFDD
	}
	if supportsTX470_490MHz {
		return CN470CustomFDD
	}
	return CN470TDD
}

// GetCN470ChannelPlanForMode returns the uplink/downlink channel sets for a mode.
func GetCN470ChannelPlanForMode(mode CN470Mode) ([]Channel, []Channel) {
	var uplinkChannels, downlinkChannels []Channel

	switch mode {
	case CN470StandardFDD:
		for ch := 0; ch < 96; ch++ {
			uplinkFreq := uint32(470300000 + ch*200000)
			uplinkChannels = append(uplinkChannels, Channel{
				Frequency: uplinkFreq,
				MinDR:     0, MaxDR: 5,
			})
		}
		for ch := 0; ch < 48; ch++ {
			downlinkFreq := uint32(500300000 + ch*200000)
			downlinkChannels = append(downlinkChannels, Channel{
				Frequency: downlinkFreq,
				MinDR:     0, MaxDR: 5,
			})
		}

	case CN470CustomFDD:
		for ch := 0; ch < 48; ch++ {
			uplinkFreq := uint32(470300000 + ch*200000)
			downlinkFreq := uint32(480300000 + ch*200000)

			if uplinkFreq <= 490000000 && downlinkFreq <= 490000000 {
				uplinkChannels = append(uplinkChannels, Channel{
					Frequency: uplinkFreq,
					MinDR:     0, MaxDR: 5,
				})
				downlinkChannels = append(downlinkChannels, Channel{
					Frequency: downlinkFreq,
					MinDR:     0, MaxDR: 5,
				})
			}
		}

	case CN470TDD:
		for ch := 0; ch < 96; ch++ {
			freq := uint32(470300000 + ch*200000)
			if freq <= 490000000 {
				channel := Channel{Frequency: freq, MinDR: 0, MaxDR: 5}
				uplinkChannels = append(uplinkChannels, channel)
				downlinkChannels = append(downlinkChannels, channel)
			}
		}
	}

	return uplinkChannels, downlinkChannels
}

// ValidateCN470Frequency reports whether freq is valid for the given mode.
func ValidateCN470Frequency(freq uint32, mode CN470Mode) bool {
	switch mode {
	case CN470StandardFDD:
		return (freq >= 470000000 && freq <= 490000000) ||
			(freq >= 500000000 && freq <= 510000000)

	case CN470CustomFDD, CN470TDD:
		return freq >= 470000000 && freq <= 490000000

	default:
		return false
	}
}

// GetCN470FrequencyOffset returns the uplink-to-downlink frequency offset for a mode.
func GetCN470FrequencyOffset(mode CN470Mode) uint32 {
	switch mode {
	case CN470StandardFDD:
		return 30000000
	case CN470CustomFDD:
		return 10000000
	case CN470TDD:
		return 0
	default:
		return 0
	}
}

// GetCN470ChannelIndex returns the channel index for a frequency.
func (r *RegionConfiguration) GetCN470ChannelIndex(frequency uint32) (int, error) {
	if r.Name != "CN470" {
		return -1, fmt.Errorf("not CN470 region")
	}

	if frequency >= 470300000 && frequency <= 490000000 {
		return int((frequency - 470300000) / 200000), nil
	}

	if frequency >= 500300000 && frequency <= 509700000 {
		return int((frequency - 500300000) / 200000), nil
	}

	return -1, fmt.Errorf("frequency %d Hz out of CN470 range", frequency)
}
