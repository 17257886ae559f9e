package telemetry

import (
	"github.com/bluenviron/gomavlib/v2/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v2/pkg/message"
)

// coordinateScale converts MAVLink fixed-point degrees (degE7) to decimal degrees.
const coordinateScale = 1e7

// VesselPosition is the flattened record republished for every AIS_VESSEL message.
type VesselPosition struct {
	MMSI      uint32  `json:"mmsi"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ExtractPosition projects an AIS_VESSEL message onto a VesselPosition.
// Values are passed through unchecked: an MMSI of 0 or the AIS "not
// available" coordinates (91, 181) are published as received.
// It returns false only when msg is not a vessel report.
func ExtractPosition(msg message.Message) (VesselPosition, bool) {
	ais, ok := msg.(*common.MessageAisVessel)
	if !ok || ais == nil {
		return VesselPosition{}, false
	}

	return VesselPosition{
		MMSI:      ais.Mmsi,
		Latitude:  float64(ais.Lat) / coordinateScale,
		Longitude: float64(ais.Lon) / coordinateScale,
	}, true
}
