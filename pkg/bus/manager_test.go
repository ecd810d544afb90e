package bus

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBusManagerSendReceiveSmall(t *testing.T) {
	medium := NewVirtualBus()
	tx := NewBusManager(medium)
	rx := NewBusManager(medium)
	assert.Nil(t, tx.Connect())
	assert.Nil(t, rx.Connect())

	rx.AddLocalNode(5)
	received := make(chan []byte, 1)
	rx.RegisterHandler(ChannelFileClient, func(localNode uint8, header Header, payload []byte) {
		assert.EqualValues(t, 5, localNode)
		assert.EqualValues(t, 3, header.SourceNode)
		received <- payload
	})

	result := tx.Send(3, 5, ChannelFileClient, []byte("hi"), PriorityLow)
	assert.Equal(t, SendOk, result)

	select {
	case payload := <-received:
		assert.True(t, bytes.Equal([]byte("hi"), payload))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestBusManagerFragmentsLargePayload(t *testing.T) {
	medium := NewVirtualBus()
	tx := NewBusManager(medium)
	rx := NewBusManager(medium)
	assert.Nil(t, tx.Connect())
	assert.Nil(t, rx.Connect())

	rx.AddLocalNode(2)
	payload := bytes.Repeat([]byte{0xAB}, 200)
	received := make(chan []byte, 1)
	rx.RegisterHandler(ChannelParameters, func(localNode uint8, header Header, got []byte) {
		received <- got
	})

	result := tx.Send(1, 2, ChannelParameters, payload, PriorityLow)
	assert.Equal(t, SendOk, result)

	select {
	case got := <-received:
		assert.True(t, bytes.Equal(payload, got))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for fragmented message")
	}
}

func TestBusManagerRejectsOversizedPayload(t *testing.T) {
	medium := NewVirtualBus()
	tx := NewBusManager(medium)
	assert.Nil(t, tx.Connect())

	oversized := make([]byte, maxMessageSize+1)
	result := tx.Send(1, 2, ChannelFileClient, oversized, PriorityLow)
	assert.Equal(t, SendMallocFail, result)
}

func TestBusManagerZeroLengthPayload(t *testing.T) {
	medium := NewVirtualBus()
	tx := NewBusManager(medium)
	rx := NewBusManager(medium)
	assert.Nil(t, tx.Connect())
	assert.Nil(t, rx.Connect())

	rx.AddLocalNode(2)
	var wg sync.WaitGroup
	wg.Add(1)
	rx.RegisterHandler(ChannelFileClient, func(localNode uint8, header Header, got []byte) {
		assert.Empty(t, got)
		wg.Done()
	})

	result := tx.Send(1, 2, ChannelFileClient, nil, PriorityHigh)
	assert.Equal(t, SendOk, result)
	wg.Wait()
}
