package message_test

import (
	"testing"

	"github.com/buzzlang/buzz/message"
)

func roundTrip(t *testing.T, m message.Message) message.Message {
	t.Helper()
	buf := message.Encode(m)
	got, err := message.Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return got
}

func TestBroadcastRoundTrip(t *testing.T) {
	want := message.Message{
		Type:    message.TypeBroadcast,
		RobotID: 7,
		Topic:   "heading",
		Payload: message.Float(3.5),
	}
	got := roundTrip(t, want)
	if got.Topic != want.Topic || got.Payload.F != want.Payload.F || got.RobotID != want.RobotID {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestSwarmListRoundTrip(t *testing.T) {
	want := message.Message{Type: message.TypeSwarmList, RobotID: 1, SwarmIDs: []uint16{2, 3, 9}}
	got := roundTrip(t, want)
	if len(got.SwarmIDs) != 3 || got.SwarmIDs[2] != 9 {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestVStigPutRoundTrip(t *testing.T) {
	want := message.Message{
		Type:      message.TypeVStigPut,
		RobotID:   4,
		VStigID:   2,
		Key:       message.Str("k"),
		Value:     message.Int(42),
		Timestamp: 99,
	}
	got := roundTrip(t, want)
	if got.Key.S != "k" || got.Value.I != 42 || got.Timestamp != 99 || got.VStigID != 2 {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestVStigQueryRoundTrip(t *testing.T) {
	want := message.Message{Type: message.TypeVStigQuery, RobotID: 4, VStigID: 5, Key: message.Str("q")}
	got := roundTrip(t, want)
	if got.Key.S != "q" || got.VStigID != 5 {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestSwarmJoinLeaveRoundTrip(t *testing.T) {
	for _, typ := range []message.Type{message.TypeSwarmJoin, message.TypeSwarmLeave} {
		want := message.Message{Type: typ, RobotID: 1, SwarmID: 11}
		got := roundTrip(t, want)
		if got.SwarmID != 11 || got.Type != typ {
			t.Errorf("%s: got %+v, want %+v", typ, got, want)
		}
	}
}

func TestTableValueRoundTrip(t *testing.T) {
	want := message.Value{Kind: message.KTable, Table: []message.Entry{
		{Key: message.Str("x"), Val: message.Int(1)},
		{Key: message.Str("y"), Val: message.Float(2.5)},
	}}
	buf := message.EncodeValue(nil, want)
	got, rest, err := message.DecodeValue(buf)
	if err != nil {
		t.Fatalf("DecodeValue: %v", err)
	}
	if len(rest) != 0 {
		t.Errorf("leftover bytes: %d", len(rest))
	}
	if len(got.Table) != 2 || got.Table[0].Key.S != "x" || got.Table[1].Val.F != 2.5 {
		t.Errorf("got %+v", got)
	}
}

func TestDecodeTruncatedIsError(t *testing.T) {
	if _, err := message.Decode([]byte{byte(message.TypeBroadcast)}); err == nil {
		t.Fatal("expected error for truncated message")
	}
}
