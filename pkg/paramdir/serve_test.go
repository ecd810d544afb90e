package paramdir

import (
	"testing"
	"time"
	"unsafe"

	"github.com/evonode/evcan/pkg/bus"
	"github.com/evonode/evcan/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	serverNode = 0x40
	clientNode = 0x41
)

func newParamRig(t *testing.T, table *Table) (*Engine, *Engine) {
	t.Helper()
	medium := bus.NewVirtualBus()
	serverTransport := bus.NewBusManager(medium)
	clientTransport := bus.NewBusManager(medium)
	require.NoError(t, serverTransport.Connect())
	require.NoError(t, clientTransport.Connect())

	server := NewEngine(serverTransport, serverNode, table)
	client := NewEngine(clientTransport, clientNode, &Table{})
	return server, client
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition never became true")
}

// TestDescriptorFetchScenarioF mirrors scenario F: a node asks for a
// parameter's full descriptor and gets back Name="Speed",
// Formatting="rpm".
func TestDescriptorFetchScenarioF(t *testing.T) {
	var speed int32 = 1500
	table := &Table{
		Directories: []Directory{
			{
				Name: "Motor",
				Parameters: []Parameter{
					{Name: "Motor", ParamType: wire.ParamDir},
					{
						Ptr:        unsafe.Pointer(&speed),
						ValueType:  wire.TypeI32,
						ParamType:  wire.ParamValue,
						Min:        0,
						Max:        10000,
						Name:       "Speed",
						Formatting: "rpm",
					},
				},
			},
		},
	}
	server, client := newParamRig(t, table)

	remote := &RemoteValue{}
	require.True(t, client.ParameterUpdateAsync(remote, 0, 1, serverNode, true))

	waitFor(t, func() bool { return remote.Name != "" })
	assert.Equal(t, "Speed", remote.Name)
	assert.Equal(t, "rpm", remote.Formatting)
	assert.Equal(t, int32(1500), remote.Value)
	assert.Equal(t, int32(10000), remote.Max)
	_ = server
}

func TestValueFetchRejectsFunctionType(t *testing.T) {
	table := &Table{
		Directories: []Directory{
			{
				Parameters: []Parameter{
					{Name: "Root", ParamType: wire.ParamDir},
					{Name: "DoThing", ParamType: wire.ParamFunc},
				},
			},
		},
	}
	server, client := newParamRig(t, table)

	remote := &RemoteValue{}
	require.True(t, client.ParameterUpdateAsync(remote, 0, 1, serverNode, false))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), remote.Value)
	_ = server
}

func TestValueFetchReturnsValue(t *testing.T) {
	var gain int32 = 7
	table := &Table{
		Directories: []Directory{
			{
				Parameters: []Parameter{
					{Name: "Root", ParamType: wire.ParamDir},
					{Ptr: unsafe.Pointer(&gain), ValueType: wire.TypeI32, ParamType: wire.ParamValue, Min: 0, Max: 100, Name: "Gain"},
				},
			},
		},
	}
	server, client := newParamRig(t, table)

	remote := &RemoteValue{}
	require.True(t, client.ParameterUpdateAsync(remote, 0, 1, serverNode, false))

	waitFor(t, func() bool { return remote.Value == 7 })
	_ = server
}

func TestParameterSetStoresRemoteValue(t *testing.T) {
	var gain int32 = 0
	table := &Table{
		Directories: []Directory{
			{
				Parameters: []Parameter{
					{Name: "Root", ParamType: wire.ParamDir},
					{Ptr: unsafe.Pointer(&gain), ValueType: wire.TypeI32, ParamType: wire.ParamValue, Min: 0, Max: 100, Name: "Gain"},
				},
			},
		},
	}
	server, client := newParamRig(t, table)

	result := client.ParameterSet(55, 0, 1, serverNode)
	require.Equal(t, bus.SendOk, result)

	waitFor(t, func() bool { return gain == 55 })
}
