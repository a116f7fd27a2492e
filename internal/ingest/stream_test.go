package ingest

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestParseMessage_SingleBar(t *testing.T) {
	msg := []byte(`{"type":"bar","data":{"symbol":"spy","ts":"2026-08-28T14:30:00Z","open":"100.1","high":"101.2","low":"99.9","close":"100.75","volume":12000}}`)
	bars, flows, err := ParseMessage(msg)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if len(flows) != 0 {
		t.Fatalf("unexpected flow rows: %d", len(flows))
	}
	if len(bars) != 1 {
		t.Fatalf("bars = %d, want 1", len(bars))
	}
	bar := bars[0]
	if bar.Symbol != "SPY" {
		t.Fatalf("symbol = %q, want SPY", bar.Symbol)
	}
	want := time.Date(2026, 8, 28, 14, 30, 0, 0, time.UTC)
	if !bar.TS.Equal(want) {
		t.Fatalf("ts = %v, want %v", bar.TS, want)
	}
	if !bar.Close.Equal(decimal.RequireFromString("100.75")) {
		t.Fatalf("close = %s, want 100.75", bar.Close)
	}
	if bar.Volume != 12000 {
		t.Fatalf("volume = %d", bar.Volume)
	}
}

func TestParseMessage_FlowBatch(t *testing.T) {
	msg := []byte(`{"type":"flow","data":[
		{"symbol":"SPY","option_symbol":"SPY260918C650","side":"BUY","size":50,"notional":"125000.50","ts":"2026-08-28T14:31:02Z"},
		{"symbol":"SPY","option_symbol":"SPY260918P600","side":"sell","size":20,"notional":"40000","ts":"2026-08-28T14:31:05Z"}
	]}`)
	bars, flows, err := ParseMessage(msg)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if len(bars) != 0 || len(flows) != 2 {
		t.Fatalf("bars=%d flows=%d, want 0/2", len(bars), len(flows))
	}
	if flows[0].Side != "buy" || flows[1].Side != "sell" {
		t.Fatalf("sides not normalized: %q %q", flows[0].Side, flows[1].Side)
	}
	if !flows[0].Notional.Equal(decimal.RequireFromString("125000.50")) {
		t.Fatalf("notional = %s", flows[0].Notional)
	}
}

func TestParseMessage_UnknownTypeSkipped(t *testing.T) {
	bars, flows, err := ParseMessage([]byte(`{"type":"heartbeat","data":{}}`))
	if err != nil || len(bars) != 0 || len(flows) != 0 {
		t.Fatalf("heartbeat should be a silent no-op, got %v %d %d", err, len(bars), len(flows))
	}
}

func TestParseMessage_Rejects(t *testing.T) {
	cases := []struct {
		name string
		msg  string
		want string
	}{
		{"empty", "", "empty"},
		{"not json", "not-json", "invalid"},
		{"bar missing symbol", `{"type":"bar","data":{"ts":"2026-08-28T14:30:00Z","open":"1","high":"1","low":"1","close":"1"}}`, "symbol"},
		{"bar bad ts", `{"type":"bar","data":{"symbol":"SPY","ts":"yesterday","open":"1","high":"1","low":"1","close":"1"}}`, "ts"},
		{"bar bad price", `{"type":"bar","data":{"symbol":"SPY","ts":"2026-08-28T14:30:00Z","open":"1","high":"1","low":"1","close":"abc"}}`, "close"},
		{"flow bad side", `{"type":"flow","data":{"symbol":"SPY","side":"hold","size":1,"notional":"10","ts":"2026-08-28T14:30:00Z"}}`, "side"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := ParseMessage([]byte(tc.msg))
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err %q does not mention %q", err, tc.want)
			}
		})
	}
}
