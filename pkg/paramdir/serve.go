package paramdir

import (
	"github.com/evonode/evcan/pkg/bus"
	"github.com/evonode/evcan/pkg/wire"
	log "github.com/sirupsen/logrus"
)

// Engine is the parameter-exchange endpoint for one local node. It
// answers inbound describe/value/store requests against a Table of local
// parameters, and correlates inbound replies back to a Queue of this
// node's own outstanding async requests — both sides of the exchange
// share one inbound dispatch, mirroring proceedParam's single
// switch-on-payload-size function.
type Engine struct {
	transport *bus.BusManager
	localNode uint8
	table     *Table
	queue     *Queue
}

// NewEngine wires a parameter engine onto transport for localNode,
// serving requests against table.
func NewEngine(transport *bus.BusManager, localNode uint8, table *Table) *Engine {
	e := &Engine{transport: transport, localNode: localNode, table: table}
	e.queue = NewQueue(DefaultQueueSize, e.sendAsyncRequest)
	transport.AddLocalNode(localNode)
	transport.RegisterHandler(bus.ChannelParameters, e.handle)
	return e
}

func (e *Engine) sendAsyncRequest(entry pendingUpdate) bool {
	buf := make([]byte, wire.ValueRequestSize)
	var n int
	if entry.full {
		n = wire.EncodeDescriptorRequest(buf, entry.index, entry.directory)
	} else {
		n = wire.EncodeValueRequest(buf, entry.index, entry.directory)
	}
	result := e.transport.Send(e.localNode, entry.source, bus.ChannelParameters, buf[:n], bus.PriorityLow)
	if result != bus.SendOk {
		log.Warnf("[PARAMDIR][TX] async request send failed dir=%d index=%d to x%x: %v", entry.directory, entry.index, entry.source, result)
		return false
	}
	return true
}

// ParameterUpdateAsync requests directory/index's value (or, if full,
// its whole descriptor) from receiverNode, to be written into remote
// once the reply arrives. Returns false if the local queue is full.
func (e *Engine) ParameterUpdateAsync(remote *RemoteValue, directory, index, receiverNode uint8, full bool) bool {
	remote.Index = index
	return e.queue.Push(remote, directory, index, receiverNode, full)
}

// ParametersStopUpdating discards every outstanding async request.
func (e *Engine) ParametersStopUpdating() { e.queue.StopUpdating() }

// ParameterSet sends a fire-and-forget write of value to directory/index
// on receiverNode, mirroring LC_ParameterSet.
func (e *Engine) ParameterSet(value int32, directory, index, receiverNode uint8) bus.SendResult {
	buf := make([]byte, wire.StoreValueSize)
	wire.EncodeStoreValue(buf, value, directory, index)
	return e.transport.Send(e.localNode, receiverNode, bus.ChannelParameters, buf, bus.PriorityLow)
}

// handle dispatches by payload length exactly as proceedParam does: the
// same channel carries describe/value/store requests this node must
// serve, and value/descriptor replies to this node's own async queue.
func (e *Engine) handle(localNode uint8, header bus.Header, payload []byte) {
	switch {
	case len(payload) == wire.DescriptorRequestSize:
		e.serveDescribe(header.SourceNode, payload)
	case len(payload) == wire.ValueRequestSize:
		e.serveValue(header.SourceNode, payload)
	case len(payload) == wire.StoreValueSize:
		e.serveStore(payload)
	case len(payload) == wire.ValueReplySize:
		e.receiveValueReply(header.SourceNode, payload)
	case len(payload) > wire.DescriptorHeaderSize:
		e.receiveDescriptorReply(header.SourceNode, payload)
	default:
		log.Debugf("[PARAMDIR][RX] unrecognized request length %d from x%x", len(payload), header.SourceNode)
	}
	// Mirrors proceedParam's unconditional "receive_busy = 0; proceed_RX();"
	// at the end of every dispatch branch: any parameter-channel activity
	// is taken as a cue to retry the head of the async queue.
	e.queue.resetAndPump()
}

func (e *Engine) serveDescribe(source uint8, payload []byte) {
	req, err := wire.DecodeDescriptorRequest(payload)
	if err != nil {
		return
	}
	buf := make([]byte, 256)
	var n int
	param, ok := e.table.Lookup(req.Directory, req.Index)
	if !ok {
		n = wire.EncodeDescriptorReply(buf, wire.DescriptorReply{
			Directory: req.Directory,
			Index:     req.Index,
			ParamType: wire.ParamInvalid,
		})
	} else {
		max := param.Max
		name := param.Name
		if param.ParamType.Base() == wire.ParamDir {
			max = int32(e.table.Directories[req.Directory].Size())
			if name == "" {
				name = e.table.Directories[req.Directory].Name
			}
			if name == "" {
				name = "Unknown directory"
			}
		}
		n = wire.EncodeDescriptorReply(buf, wire.DescriptorReply{
			Value:      GetValue(param),
			Min:        param.Min,
			Max:        max,
			Step:       param.Step,
			Decimal:    param.Decimal,
			Directory:  req.Directory,
			Index:      req.Index,
			ParamType:  param.ParamType,
			Name:       name,
			Formatting: param.Formatting,
		})
	}
	e.transport.Send(e.localNode, source, bus.ChannelParameters, buf[:n], bus.PriorityLow)
}

func (e *Engine) serveValue(source uint8, payload []byte) {
	req, err := wire.DecodeValueRequest(payload)
	if err != nil {
		return
	}
	param, ok := e.table.Lookup(req.Directory, req.Index)
	if !ok {
		return
	}
	base := param.ParamType.Base()
	if base == wire.ParamDir || base == wire.ParamFunc {
		return
	}
	buf := make([]byte, wire.ValueReplySize)
	n := wire.EncodeValueReply(buf, GetValue(param), req.Directory, req.Index)
	e.transport.Send(e.localNode, source, bus.ChannelParameters, buf[:n], bus.PriorityLow)
}

func (e *Engine) serveStore(payload []byte) {
	store, err := wire.DecodeStoreValue(payload)
	if err != nil {
		return
	}
	param, ok := e.table.Lookup(store.Directory, store.Index)
	if !ok {
		return
	}
	if param.ParamType.ReadOnly() {
		log.Debugf("[PARAMDIR][RX] rejected store dir=%d index=%d: read-only", store.Directory, store.Index)
		return
	}
	if err := SetValue(param, store.Value); err != nil {
		log.Debugf("[PARAMDIR][RX] rejected store dir=%d index=%d: %v", store.Directory, store.Index, err)
	}
}

func (e *Engine) receiveValueReply(source uint8, payload []byte) {
	store, err := wire.DecodeStoreValue(payload)
	if err != nil {
		return
	}
	entry, matched := e.queue.popMatch(store.Directory, store.Index, source)
	if !matched {
		log.Debugf("[PARAMDIR][RX] dropped value reply dir=%d index=%d from x%x: no matching request", store.Directory, store.Index, source)
		return
	}
	entry.remote.Value = store.Value
	entry.remote.ParamType &^= wire.ParamReqVal
}

func (e *Engine) receiveDescriptorReply(source uint8, payload []byte) {
	reply, err := wire.DecodeDescriptorReply(payload)
	if err != nil {
		log.Warnf("[PARAMDIR][RX] malformed descriptor reply from x%x: %v", source, err)
		return
	}
	entry, matched := e.queue.popMatch(reply.Directory, reply.Index, source)
	if !matched {
		log.Debugf("[PARAMDIR][RX] dropped descriptor reply dir=%d index=%d from x%x: no matching request", reply.Directory, reply.Index, source)
		return
	}
	remote := entry.remote
	remote.Value = reply.Value
	remote.Min = reply.Min
	remote.Max = reply.Max
	remote.Step = reply.Step
	remote.Decimal = reply.Decimal
	remote.ParamType = reply.ParamType &^ wire.ParamNoInit
	remote.Name = reply.Name
	remote.Formatting = reply.Formatting
}
