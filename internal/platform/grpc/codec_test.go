package grpc

import (
	"testing"

	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type codecSample struct {
	OfferID string `json:"offer_id"`
	Count   int    `json:"count"`
}

func TestJSONCodecRegistered(t *testing.T) {
	if encoding.GetCodec(JSONCodecName) == nil {
		t.Fatal("expected json codec to be registered")
	}
}

func TestJSONCodecPlainStruct(t *testing.T) {
	codec := JSONCodec{}
	data, err := codec.Marshal(&codecSample{OfferID: "o1", Count: 3})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"offer_id":"o1","count":3}` {
		t.Fatalf("unexpected payload %s", data)
	}
	var out codecSample
	if err := codec.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.OfferID != "o1" || out.Count != 3 {
		t.Fatalf("decoded = %+v", out)
	}
}

func TestJSONCodecEmptyPayload(t *testing.T) {
	var out codecSample
	if err := (JSONCodec{}).Unmarshal(nil, &out); err != nil {
		t.Fatalf("unmarshal empty: %v", err)
	}
}

func TestJSONCodecProtoMessage(t *testing.T) {
	codec := JSONCodec{}
	data, err := codec.Marshal(wrapperspb.String("hello"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	out := &wrapperspb.StringValue{}
	if err := codec.Unmarshal(data, out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.GetValue() != "hello" {
		t.Fatalf("value = %q", out.GetValue())
	}
}

func TestJSONCodecRejectsMalformed(t *testing.T) {
	var out codecSample
	if err := (JSONCodec{}).Unmarshal([]byte("{"), &out); err == nil {
		t.Fatal("expected error for malformed json")
	}
}
