package bus

import (
	"encoding/binary"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Fragment layout, one control byte followed by payload:
//
//	byte0: bit7 = first fragment, bit6 = last fragment, bits0-5 = sequence
//	first fragment:  byte1 = source node, byte2-3 = total length (LE), byte4-7 = payload
//	later fragments: byte1-7 = payload
const (
	firstFramePayload = 4
	contFramePayload  = 7
	maxFragmentSeq    = 0x3F
	maxMessageSize    = firstFramePayload + contFramePayload*maxFragmentSeq
)

func fragmentControl(first, last bool, seq uint8) byte {
	c := seq & maxFragmentSeq
	if first {
		c |= 0x80
	}
	if last {
		c |= 0x40
	}
	return c
}

type reassemblyState struct {
	srcNode uint8
	total   int
	buf     []byte
	nextSeq uint8
}

// BusManager multiplexes Channels onto a Bus, fragmenting outbound
// payloads into 8 byte frames and reassembling inbound ones. Callers above
// it (pkg/fileclient, pkg/paramdir) see whole messages with a source node,
// never raw frames.
type BusManager struct {
	mu          sync.Mutex
	bus         Bus
	channelBase map[Channel]uint32
	handlers    map[Channel]Handler
	reassembly  map[uint32]*reassemblyState
	localNodes  map[uint8]bool
}

// NewBusManager wires a transport on top of a Bus backend. Channel
// base identifiers are fixed: a message for node N on a given channel
// always travels as base(channel)+N, mirroring the client/server base id
// split the teacher uses for SDO (ClientBaseId/ServerBaseId).
func NewBusManager(b Bus) *BusManager {
	return &BusManager{
		bus: b,
		channelBase: map[Channel]uint32{
			ChannelFileClient: 0x700,
			ChannelParameters: 0x500,
		},
		handlers:   make(map[Channel]Handler),
		reassembly: make(map[uint32]*reassemblyState),
		localNodes: make(map[uint8]bool),
	}
}

// AddLocalNode marks nodeID as one this manager answers for. Handle only
// dispatches reassembled messages addressed to a registered local node,
// the software equivalent of a CAN controller's acceptance filter list —
// needed because, unlike real CAN hardware, VirtualBus delivers every
// frame to every subscriber with no address filtering of its own.
func (t *BusManager) AddLocalNode(nodeID uint8) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.localNodes[nodeID] = true
}

// Connect starts the underlying bus and registers the transport as its
// single frame listener.
func (t *BusManager) Connect(args ...any) error {
	if err := t.bus.Connect(args...); err != nil {
		return err
	}
	return t.bus.Subscribe(t)
}

// Disconnect tears down the underlying bus.
func (t *BusManager) Disconnect() error {
	return t.bus.Disconnect()
}

// RegisterHandler installs the handler invoked for every reassembled
// message received on channel. Only one handler per channel; registering
// again replaces it.
func (t *BusManager) RegisterHandler(channel Channel, handler Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[channel] = handler
}

func (t *BusManager) resolve(id uint32) (Channel, bool) {
	for ch, base := range t.channelBase {
		if id >= base && id < base+256 {
			return ch, true
		}
	}
	return 0, false
}

// Send fragments payload and writes it out as a sequence of frames
// addressed to targetNode on channel. Fragmentation is not reentrant per
// destination: a second Send racing the first on the same (channel,
// targetNode) before the receiver reassembles the first can interleave on
// the wire. Callers serialize sends per destination to avoid this, the
// same way the teacher's SDO client only has one transfer in flight.
func (t *BusManager) Send(localNode, targetNode uint8, channel Channel, payload []byte, priority Priority) SendResult {
	t.mu.Lock()
	base, ok := t.channelBase[channel]
	t.mu.Unlock()
	if !ok {
		return SendOtherError
	}
	if len(payload) > maxMessageSize {
		return SendMallocFail
	}

	id := base + uint32(targetNode)
	total := len(payload)
	offset := 0
	seq := uint8(0)
	first := true

	for {
		var n int
		if first {
			n = total - offset
			if n > firstFramePayload {
				n = firstFramePayload
			}
		} else {
			n = total - offset
			if n > contFramePayload {
				n = contFramePayload
			}
		}
		last := offset+n == total

		var frame Frame
		frame.ID = id
		frame.Data[0] = fragmentControl(first, last, seq)
		if first {
			frame.Data[1] = localNode
			binary.LittleEndian.PutUint16(frame.Data[2:4], uint16(total))
			copy(frame.Data[4:4+n], payload[offset:offset+n])
			frame.DLC = uint8(4 + n)
		} else {
			copy(frame.Data[1:1+n], payload[offset:offset+n])
			frame.DLC = uint8(1 + n)
		}

		if err := t.bus.Send(frame); err != nil {
			log.Warnf("[TRANSPORT][TX] send failed on %s to node x%x: %v", channel, targetNode, err)
			return SendOtherError
		}

		offset += n
		seq++
		first = false
		if last {
			break
		}
	}
	return SendOk
}

// Handle implements FrameListener, reassembling fragments and dispatching
// whole messages to the registered channel handler.
func (t *BusManager) Handle(frame Frame) {
	t.mu.Lock()
	defer t.mu.Unlock()

	channel, ok := t.resolve(frame.ID)
	if !ok || frame.DLC == 0 {
		return
	}
	handler := t.handlers[channel]
	if handler == nil {
		return
	}

	control := frame.Data[0]
	first := control&0x80 != 0
	last := control&0x40 != 0
	seq := control & maxFragmentSeq

	state, exists := t.reassembly[frame.ID]
	if first {
		if frame.DLC < firstFramePayload {
			log.Warnf("[TRANSPORT][RX] short first fragment on %s", channel)
			return
		}
		srcNode := frame.Data[1]
		total := int(binary.LittleEndian.Uint16(frame.Data[2:4]))
		n := int(frame.DLC) - firstFramePayload
		buf := make([]byte, 0, total)
		buf = append(buf, frame.Data[firstFramePayload:firstFramePayload+n]...)
		state = &reassemblyState{srcNode: srcNode, total: total, buf: buf, nextSeq: 1}
		t.reassembly[frame.ID] = state
	} else {
		if !exists {
			log.Warnf("[TRANSPORT][RX] continuation with no pending fragment on %s", channel)
			return
		}
		if seq != state.nextSeq {
			delete(t.reassembly, frame.ID)
			log.Warnf("[TRANSPORT][RX] out of sequence fragment on %s, dropping message", channel)
			return
		}
		n := int(frame.DLC) - 1
		if n > 0 {
			state.buf = append(state.buf, frame.Data[1:1+n]...)
		}
		state.nextSeq++
	}

	if !last {
		return
	}
	delete(t.reassembly, frame.ID)
	localNode := uint8(frame.ID - t.channelBase[channel])
	if !t.localNodes[localNode] {
		return
	}
	header := Header{SourceNode: state.srcNode}
	payload := state.buf
	go handler(localNode, header, payload)
}
