package bus

import (
	"github.com/brutella/can"
)

// SocketCANBus adapts brutella/can's SocketCAN backend to the Bus
// interface. This is the production transport for a real Linux CAN
// interface, ported from the teacher's SocketcanBus wrapper.
type SocketCANBus struct {
	bus      *can.Bus
	listener FrameListener
}

// NewSocketCANBus opens interfaceName (e.g. "can0") as a SocketCAN bus.
func NewSocketCANBus(interfaceName string) (*SocketCANBus, error) {
	b, err := can.NewBusForInterfaceWithName(interfaceName)
	if err != nil {
		return nil, err
	}
	return &SocketCANBus{bus: b}, nil
}

// Send implements Bus.
func (s *SocketCANBus) Send(frame Frame) error {
	canFrame := can.Frame{ID: frame.ID, Length: frame.DLC, Flags: 0, Res0: 0, Res1: 0, Data: frame.Data}
	return s.bus.Publish(canFrame)
}

// Subscribe implements Bus.
func (s *SocketCANBus) Subscribe(listener FrameListener) error {
	s.listener = listener
	// brutella/can defines its own "Handle" interface for received frames.
	s.bus.Subscribe(s)
	return nil
}

// Connect implements Bus.
func (s *SocketCANBus) Connect(...any) error {
	go s.bus.ConnectAndPublish()
	return nil
}

// Disconnect implements Bus.
func (s *SocketCANBus) Disconnect() error {
	return s.bus.Disconnect()
}

// Handle is brutella/can's frame handler interface, not ours.
func (s *SocketCANBus) Handle(frame can.Frame) {
	if s.listener == nil {
		return
	}
	s.listener.Handle(Frame{ID: frame.ID, DLC: frame.Length, Flags: frame.Flags, Data: frame.Data})
}
