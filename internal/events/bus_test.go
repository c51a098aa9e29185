package events

import (
	"testing"
	"time"

	"github.com/bryanchriswhite/ScanStreamer/internal/decode"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan SymbolDecodedEvent, 1)

	unsub := bus.Subscribe(func(e SymbolDecodedEvent) {
		received <- e
	})
	defer unsub()

	bus.Publish(SymbolDecodedEvent{
		SessionID: "s1",
		Symbol:    decode.Symbol{Type: "QR_CODE", Payload: "ABC123"},
	})

	select {
	case got := <-received:
		if got.Symbol.Payload != "ABC123" || got.SessionID != "s1" {
			t.Errorf("got %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestBus_TypesAreIsolated(t *testing.T) {
	bus := New()
	frames := make(chan FrameProcessedEvent, 1)
	unsub := bus.Subscribe(func(e FrameProcessedEvent) { frames <- e })
	defer unsub()

	bus.Publish(SessionChangedEvent{Capturing: true})

	select {
	case e := <-frames:
		t.Fatalf("frame subscriber received %+v", e)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	received := make(chan SessionChangedEvent, 1)

	unsub := bus.Subscribe(func(e SessionChangedEvent) {
		received <- e
	})

	bus.Publish(SessionChangedEvent{Capturing: true})
	<-received

	unsub()

	bus.Publish(SessionChangedEvent{Capturing: false})
	select {
	case <-received:
		t.Fatal("received event after unsubscribe")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestBus_UnknownHandlerIsNoop(t *testing.T) {
	unsub := New().Subscribe(func(string) {})
	unsub()
}

func TestSubscribeToChannel(t *testing.T) {
	bus := New()
	ch := make(chan FrameProcessedEvent, 1)
	unsub := SubscribeToChannel(bus, ch)
	defer unsub()

	bus.Publish(FrameProcessedEvent{Tick: 7})

	select {
	case e := <-ch:
		if e.Tick != 7 {
			t.Errorf("tick = %d, want 7", e.Tick)
		}
	case <-time.After(time.Second):
		t.Fatal("event not forwarded")
	}
}
