package syncgrpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcuru/eidetica"
	"github.com/arcuru/eidetica/sync"
)

func TestJSONCodecName(t *testing.T) {
	assert.Equal(t, "json", jsonCodec{}.Name())
}

func TestJSONCodecRoundTripHandshake(t *testing.T) {
	c := jsonCodec{}
	req := sync.HandshakeRequest{ProtocolVersion: sync.ProtocolVersion, DeviceID: "device-a", PubKey: "pub-a"}

	data, err := c.Marshal(req)
	require.NoError(t, err)

	var decoded sync.HandshakeRequest
	require.NoError(t, c.Unmarshal(data, &decoded))
	assert.Equal(t, req, decoded)
}

func TestJSONCodecRoundTripSendEntries(t *testing.T) {
	c := jsonCodec{}
	req := sync.SendEntriesRequest{RootID: eidetica.ID("root-1"), Entries: nil}

	data, err := c.Marshal(req)
	require.NoError(t, err)

	var decoded sync.SendEntriesRequest
	require.NoError(t, c.Unmarshal(data, &decoded))
	assert.Equal(t, req.RootID, decoded.RootID)
}

func TestJSONCodecRejectsGarbage(t *testing.T) {
	c := jsonCodec{}
	var out sync.HandshakeRequest
	err := c.Unmarshal([]byte("not json"), &out)
	assert.Error(t, err)
}
