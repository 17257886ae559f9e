package ws

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dgnsrekt/ais-bridge/internal/telemetry"
)

// Subprotocols offered on /telemetry. Clients that request none get JSON.
const (
	SubprotocolJSON     = "json.aisbridge.v1"
	SubprotocolProtobuf = "protobuf.aisbridge.v1"
	SubprotocolCBOR     = "cbor.aisbridge.v1"
)

// cborEncMode produces identical bytes for identical positions.
var cborEncMode cbor.EncMode

func init() {
	var err error
	cborEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("ws: CBOR encoder initialization failed: " + err.Error())
	}
}

type codec struct {
	name        string
	messageType int
	encode      func(telemetry.VesselPosition) ([]byte, error)
}

var (
	jsonCodec     = codec{name: "json", messageType: websocket.TextMessage, encode: EncodeJSON}
	protobufCodec = codec{name: "protobuf", messageType: websocket.BinaryMessage, encode: EncodeProtobuf}
	cborCodec     = codec{name: "cbor", messageType: websocket.BinaryMessage, encode: EncodeCBOR}
)

func codecFor(subprotocol string) codec {
	switch subprotocol {
	case SubprotocolProtobuf:
		return protobufCodec
	case SubprotocolCBOR:
		return cborCodec
	default:
		return jsonCodec
	}
}

// EncodeJSON renders pos as {"mmsi":..,"latitude":..,"longitude":..}.
func EncodeJSON(pos telemetry.VesselPosition) ([]byte, error) {
	data, err := json.Marshal(pos)
	if err != nil {
		return nil, fmt.Errorf("marshal position json: %w", err)
	}
	return data, nil
}

// EncodeProtobuf renders pos as a google.protobuf.Struct with the same
// keys as the JSON form.
func EncodeProtobuf(pos telemetry.VesselPosition) ([]byte, error) {
	s, err := structpb.NewStruct(map[string]any{
		"mmsi":      pos.MMSI,
		"latitude":  pos.Latitude,
		"longitude": pos.Longitude,
	})
	if err != nil {
		return nil, fmt.Errorf("build position struct: %w", err)
	}

	data, err := proto.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal position protobuf: %w", err)
	}
	return data, nil
}

// DecodeProtobuf parses a frame produced by EncodeProtobuf.
func DecodeProtobuf(data []byte) (telemetry.VesselPosition, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return telemetry.VesselPosition{}, fmt.Errorf("unmarshal position protobuf: %w", err)
	}

	fields := s.GetFields()
	for _, key := range []string{"mmsi", "latitude", "longitude"} {
		if _, ok := fields[key]; !ok {
			return telemetry.VesselPosition{}, fmt.Errorf("missing field %q", key)
		}
	}

	return telemetry.VesselPosition{
		MMSI:      uint32(fields["mmsi"].GetNumberValue()),
		Latitude:  fields["latitude"].GetNumberValue(),
		Longitude: fields["longitude"].GetNumberValue(),
	}, nil
}

// EncodeCBOR renders pos as a CBOR map keyed like the JSON form.
func EncodeCBOR(pos telemetry.VesselPosition) ([]byte, error) {
	data, err := cborEncMode.Marshal(pos)
	if err != nil {
		return nil, fmt.Errorf("marshal position cbor: %w", err)
	}
	return data, nil
}

// DecodeCBOR parses a frame produced by EncodeCBOR.
func DecodeCBOR(data []byte) (telemetry.VesselPosition, error) {
	var pos telemetry.VesselPosition
	if err := cbor.Unmarshal(data, &pos); err != nil {
		return telemetry.VesselPosition{}, fmt.Errorf("unmarshal position cbor: %w", err)
	}
	return pos, nil
}
