// Command evcan is a small demonstration client for the file-access and
// parameter-exchange engines in pkg/fileclient and pkg/paramdir, in the
// same spirit as the teacher's cmd/sdo_client: wire up a transport, point
// it at one remote node, run a handful of operations and print what came
// back.
package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/evonode/evcan/pkg/bus"
	"github.com/evonode/evcan/pkg/directory"
	"github.com/evonode/evcan/pkg/fileclient"
	"github.com/evonode/evcan/pkg/paramdir"
	log "github.com/sirupsen/logrus"
)

var (
	defaultInterface = "vcan0"
	defaultLocalNode = uint8(0x10)
)

func main() {
	log.SetLevel(log.DebugLevel)

	channel := flag.String("i", defaultInterface, "socketcan interface, e.g. can0, vcan0")
	virtual := flag.Bool("virtual", false, "use an in-process virtual bus instead of socketcan (for local testing without hardware)")
	localNode := flag.Uint("local", uint(defaultLocalNode), "this process's local node id")
	remoteNode := flag.Uint("remote", uint(directory.Broadcast), "remote node id to talk to, or broadcast to discover one")
	iniPath := flag.String("params", "", "path to an ini file describing this node's own parameter directory")
	fetchFile := flag.String("get", "", "remote file path to open, read and print")
	paramDir := flag.Uint("param-dir", 0, "remote directory index to fetch a parameter from")
	paramIndex := flag.Uint("param-index", 0, "remote parameter index to fetch")
	flag.Parse()

	transport, err := newTransport(*virtual, *channel)
	if err != nil {
		log.Fatalf("connecting transport: %v", err)
	}
	if err := transport.Connect(); err != nil {
		log.Fatalf("connecting transport: %v", err)
	}

	dir := directory.New()
	dir.AddLocalNode(uint8(*localNode))
	if uint8(*remoteNode) != directory.Broadcast {
		dir.AddRemoteNode(directory.NodeShortName{NodeID: uint8(*remoteNode), FileServer: true})
	}

	table := &paramdir.Table{}
	if *iniPath != "" {
		if err := paramdir.LoadDirectoryINI(*iniPath, table); err != nil {
			log.Fatalf("loading %s: %v", *iniPath, err)
		}
	}
	engine := paramdir.NewEngine(transport, uint8(*localNode), table)

	client := fileclient.NewClient(transport, dir)

	if *fetchFile != "" {
		runFileFetch(client, *fetchFile, uint8(*localNode), uint8(*remoteNode))
	}

	if flagWasSet("param-dir") || flagWasSet("param-index") {
		runParamFetch(engine, uint8(*remoteNode), uint8(*paramDir), uint8(*paramIndex))
	}
}

func newTransport(virtual bool, channel string) (*bus.BusManager, error) {
	if virtual {
		return bus.NewBusManager(bus.NewVirtualBus()), nil
	}
	can, err := bus.NewSocketCANBus(channel)
	if err != nil {
		return nil, err
	}
	return bus.NewBusManager(can), nil
}

func runFileFetch(client *fileclient.Client, path string, local, remote uint8) {
	res := client.FileOpen(path, fileclient.ModeRead, local, remote)
	if res != fileclient.Ok {
		log.Errorf("open %s: %v", path, res)
		return
	}
	defer client.FileClose(local, remote)

	size := client.FileSize(local)
	buf := make([]byte, size)
	n, res := client.FileRead(buf, local)
	if res != fileclient.Ok {
		log.Errorf("read %s: %v", path, res)
		return
	}
	fmt.Printf("%s (%d bytes):\n%s\n", path, n, buf[:n])
}

// runParamFetch issues one async descriptor request and polls remote until it
// resolves or a short timeout elapses, since ParameterUpdateAsync only
// arranges for remote to be overwritten later by whatever reply arrives.
func runParamFetch(engine *paramdir.Engine, remote, dirIdx, paramIdx uint8) {
	remoteValue := &paramdir.RemoteValue{}
	if !engine.ParameterUpdateAsync(remoteValue, dirIdx, paramIdx, remote, true) {
		log.Error("parameter queue full")
		return
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if remoteValue.Name != "" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if remoteValue.Name == "" {
		log.Errorf("timed out waiting for directory %d index %d from node x%x", dirIdx, paramIdx, remote)
		return
	}
	fmt.Println(paramdir.RenderRemoteValue(remoteValue))
}

func flagWasSet(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}
