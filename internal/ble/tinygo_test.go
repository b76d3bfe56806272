package ble

import (
	"context"
	"errors"
	"testing"
	"time"

	"tinygo.org/x/bluetooth"
)

func newTestTinyGoAdapter() *TinyGoAdapter {
	return &TinyGoAdapter{seen: make(map[string]*seenDevice)}
}

func TestTinyGoRecordDedupAndOrder(t *testing.T) {
	a := newTestTinyGoAdapter()
	var addr bluetooth.Address

	a.record(addr, "AA:AA:AA:AA:AA:AA", "", -70)
	a.record(addr, "BB:BB:BB:BB:BB:BB", "Phone", -60)
	// Scan response for the first device carries its name.
	a.record(addr, "AA:AA:AA:AA:AA:AA", "WeatherCat-01", -55)
	// A later advertisement without a name keeps the known one.
	a.record(addr, "AA:AA:AA:AA:AA:AA", "", -50)

	got := a.Peripherals()
	want := []Device{
		{Name: "WeatherCat-01", Address: "AA:AA:AA:AA:AA:AA", RSSI: -50},
		{Name: "Phone", Address: "BB:BB:BB:BB:BB:BB", RSSI: -60},
	}
	if len(got) != len(want) {
		t.Fatalf("Peripherals() = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Peripherals()[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestTinyGoPeripheralsIsSnapshot(t *testing.T) {
	a := newTestTinyGoAdapter()
	var addr bluetooth.Address
	a.record(addr, "AA:AA:AA:AA:AA:AA", "WeatherCat-01", -50)

	snapshot := a.Peripherals()
	a.record(addr, "AA:AA:AA:AA:AA:AA", "Renamed", -40)
	a.record(addr, "BB:BB:BB:BB:BB:BB", "Phone", -60)

	if len(snapshot) != 1 || snapshot[0].Name != "WeatherCat-01" {
		t.Errorf("snapshot changed after later advertisements: %+v", snapshot)
	}
}

func TestTinyGoConnectUnseenDevice(t *testing.T) {
	a := newTestTinyGoAdapter()
	if _, err := a.Connect(context.Background(), "CC:CC:CC:CC:CC:CC"); err == nil {
		t.Error("Connect() to an unseen device should fail")
	}
}

func TestAwaitConnectionResult(t *testing.T) {
	conn := &mockConnection{}
	ch := make(chan connectResult, 1)
	ch <- connectResult{conn: conn}
	got, err := awaitConnection(context.Background(), "AA", ch)
	if err != nil || got != conn {
		t.Errorf("awaitConnection() = %v, %v, want the connection", got, err)
	}

	ch = make(chan connectResult, 1)
	ch <- connectResult{err: errMock}
	if _, err := awaitConnection(context.Background(), "AA", ch); !errors.Is(err, errMock) {
		t.Errorf("awaitConnection() error = %v, want errMock", err)
	}
}

func TestAwaitConnectionDropsLateConnection(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	conn := &mockConnection{}
	ch := make(chan connectResult, 1)
	_, err := awaitConnection(ctx, "AA", ch)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("awaitConnection() error = %v, want context.Canceled", err)
	}

	ch <- connectResult{conn: conn}
	deadline := time.Now().Add(time.Second)
	for {
		conn.mu.Lock()
		done := conn.disconnected
		conn.mu.Unlock()
		if done {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("late connection was never disconnected")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
