package conrad

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/urmzd/homai-gateway/internal/beeeon"
)

// fakeFHEMConn serves canned jsonlist2 responses keyed by command.
type fakeFHEMConn struct {
	responses map[string]string
	sent      []string
}

func (f *fakeFHEMConn) Exec(cmd string) (map[string]any, error) {
	f.sent = append(f.sent, cmd)
	raw, ok := f.responses[cmd]
	if !ok {
		return nil, errors.New("unexpected command: " + cmd)
	}
	var msg map[string]any
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (f *fakeFHEMConn) Send(cmd string) error {
	f.sent = append(f.sent, cmd)
	return nil
}

func (f *fakeFHEMConn) Close() error { return nil }

func deviceResponse(protRcv, protSnd, lastRcv string) string {
	return `{
		"Results": [{
			"Internals": {
				"protRcv": "` + protRcv + `",
				"protSnd": "` + protSnd + `",
				"protLastRcv": "` + lastRcv + `",
				"CUL_0_RAWMSG": "A0C44A64130B0BEF11034013FC8::-52:CUL_0",
				"CUL_0_RSSI": "-52",
				"STATE": "open",
				"channel_01": "HM_30B0BE_Sw"
			},
			"Attributes": {
				"subType": "threeStateSensor",
				"model": "HM-SEC-SC-2",
				"serialNr": "LEQ1101988"
			}
		}]
	}`
}

func testFHEMResponses(protRcv, protSnd, lastRcv string) map[string]string {
	return map[string]string{
		"jsonlist2 ActionDetector": `{
			"Results": [{
				"Readings": {
					"status_HM_30B0BE": {"Value": "alive"},
					"state": {"Value": "active"}
				}
			}]
		}`,
		"jsonlist2 HM_30B0BE":    deviceResponse(protRcv, protSnd, lastRcv),
		"jsonlist2 HM_30B0BE_Sw": `{"Results":[{"Internals":{"STATE":"on"}}]}`,
	}
}

func receiveEvent(t *testing.T, c *FHEMClient) map[string]any {
	t.Helper()
	data, err := c.Receive(context.Background(), 0)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	var event map[string]any
	if err := json.Unmarshal(data, &event); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	return event
}

func TestFHEMCycleSynthesizesEvents(t *testing.T) {
	client := NewFHEMClient(FHEMOptions{})

	// first sight: new_device
	conn := &fakeFHEMConn{responses: testFHEMResponses("10 2026-01-01", "5 2026-01-01", "2026-01-01 10:00:00")}
	if err := client.cycle(conn); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	event := receiveEvent(t, client)
	if event["event"] != "new_device" || event["dev"] != "HM_30B0BE" {
		t.Fatalf("first event = %v, want new_device for HM_30B0BE", event)
	}
	if event["type"] != "threeStateSensor" || event["model"] != "HM-SEC-SC-2" {
		t.Errorf("new_device carries %v", event)
	}

	// nothing changed: no event
	conn = &fakeFHEMConn{responses: testFHEMResponses("10 2026-01-01", "5 2026-01-01", "2026-01-01 10:00:00")}
	if err := client.cycle(conn); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if _, err := client.Receive(context.Background(), 0); !errors.Is(err, beeeon.ErrTimeout) {
		t.Fatalf("expected timeout on unchanged state, got %v", err)
	}

	// counters grew and a fresh message arrived
	conn = &fakeFHEMConn{responses: testFHEMResponses("11 2026-01-01", "6 2026-01-01", "2026-01-01 10:00:05")}
	if err := client.cycle(conn); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	got := map[string]bool{}
	for i := 0; i < 3; i++ {
		event := receiveEvent(t, client)
		name, _ := event["event"].(string)
		got[name] = true

		if name == "message" {
			if event["raw"] != "A0C44A64130B0BEF11034013FC8" {
				t.Errorf("raw = %v, want the prefix before the first colon", event["raw"])
			}
			if event["rssi"] != -52.0 {
				t.Errorf("rssi = %v", event["rssi"])
			}
			channels, _ := event["channels"].(map[string]any)
			if channels["Main"] != "open" {
				t.Errorf("channels.Main = %v", channels["Main"])
			}
			if channels["Sw"] != "on" {
				t.Errorf("channels.Sw = %v (from the extra channel query)", channels["Sw"])
			}
		}
	}
	for _, name := range []string{"rcv_cnt", "snd_cnt", "message"} {
		if !got[name] {
			t.Errorf("missing synthesized %s event", name)
		}
	}
}

func TestFHEMReceiveTimeout(t *testing.T) {
	client := NewFHEMClient(FHEMOptions{})

	start := time.Now()
	_, err := client.Receive(context.Background(), 50*time.Millisecond)
	if !errors.Is(err, beeeon.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if time.Since(start) < 40*time.Millisecond {
		t.Error("Receive returned before the timeout elapsed")
	}
}

func TestFHEMReceiveWakesOnPush(t *testing.T) {
	client := NewFHEMClient(FHEMOptions{})

	go func() {
		time.Sleep(20 * time.Millisecond)
		client.pushEvent(map[string]any{"event": "rcv_cnt", "dev": "HM_30B0BE"})
	}()

	data, err := client.Receive(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(data) == 0 {
		t.Error("empty event")
	}
}

func TestAssembleDeviceInfo(t *testing.T) {
	internals := map[string]any{
		"protRcv":     "42 2026-01-01 10:00:00",
		"protSnd":     "7 2026-01-01 10:00:00",
		"protLastRcv": "2026-01-01 10:00:00",
	}

	info, err := assembleDeviceInfo("HM_30B0BE", internals)
	if err != nil {
		t.Fatalf("assembleDeviceInfo: %v", err)
	}
	if info.protRcv != 42 || info.protSnd != 7 {
		t.Errorf("counters = (%d,%d), want (42,7)", info.protRcv, info.protSnd)
	}

	want := time.Date(2026, 1, 1, 10, 0, 0, 0, time.Local)
	if !info.lastRcv.Equal(want) {
		t.Errorf("lastRcv = %v, want %v", info.lastRcv, want)
	}

	// protSnd may be absent entirely
	delete(internals, "protSnd")
	info, err = assembleDeviceInfo("HM_30B0BE", internals)
	if err != nil {
		t.Fatalf("assembleDeviceInfo: %v", err)
	}
	if info.protSnd != 0 {
		t.Errorf("protSnd = %d, want 0 when absent", info.protSnd)
	}

	// malformed timestamp is an error
	internals["protLastRcv"] = "yesterday"
	if _, err := assembleDeviceInfo("HM_30B0BE", internals); err == nil {
		t.Error("expected an error for malformed protLastRcv")
	}
}
