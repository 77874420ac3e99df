package frame

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/LorenzoLeonardo/remote-call/value"
)

func encodeNoNewline(t *testing.T, f Frame) []byte {
	t.Helper()
	data, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func sampleFrames() []Frame {
	return []Frame{
		New(RemoteCallResponse, []byte(`"This is my response from mango"`)).WithID(5),
		New(RemoteCallResponse, []byte(`"This is my response from mango"`)).WithID(6),
		New(RemoteCallResponse, []byte(`"This is my response from mango"`)).WithID(8),
	}
}

func TestSplitIsRightInverseOfConcatenation_Adjacent(t *testing.T) {
	frames := sampleFrames()
	var buf bytes.Buffer
	var want [][]byte
	for _, f := range frames {
		b := encodeNoNewline(t, f)
		want = append(want, b)
		buf.Write(b)
	}

	got, err := Split(buf.Bytes())
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("Split returned %d parts, want %d", len(got), len(want))
	}
	for i := range want {
		if !bytes.Equal(got[i], want[i]) {
			t.Errorf("part %d: got %s want %s", i, got[i], want[i])
		}
		if _, err := Decode(got[i]); err != nil {
			t.Errorf("part %d does not parse: %v", i, err)
		}
	}
}

func TestSplitIsRightInverseOfConcatenation_Newline(t *testing.T) {
	frames := sampleFrames()
	var buf bytes.Buffer
	var want [][]byte
	for _, f := range frames {
		b := encodeNoNewline(t, f)
		want = append(want, b)
		buf.Write(b)
		buf.WriteByte('\n')
	}

	got, err := Split(buf.Bytes())
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("Split returned %d parts, want %d", len(got), len(want))
	}
	for i := range want {
		if !bytes.Equal(got[i], want[i]) {
			t.Errorf("part %d: got %s want %s", i, got[i], want[i])
		}
	}
}

func TestSplitSingleObject(t *testing.T) {
	f := New(AddShareObjectRequest, []byte("mango")).WithID(0)
	b := encodeNoNewline(t, f)

	got, err := Split(b)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(got) != 1 || !bytes.Equal(got[0], b) {
		t.Errorf("Split(%s) = %v, want single element equal to input", b, got)
	}
}

func TestSplitTruncatedTrailingObjectIsError(t *testing.T) {
	f := New(AddShareObjectRequest, []byte("mango")).WithID(0)
	b := encodeNoNewline(t, f)
	truncated := b[:len(b)-3]

	if _, err := Split(truncated); err == nil {
		t.Errorf("expected error for truncated trailing object, got nil")
	}
}

func TestSplitEmptyInput(t *testing.T) {
	got, err := Split(nil)
	if err != nil {
		t.Fatalf("Split(nil) failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Split(nil) = %v, want empty", got)
	}
}

func TestFrameRoundTrip(t *testing.T) {
	body := CallBody{Object: "mango", Method: "login", Param: value.String("hi")}
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	f := New(RemoteCallRequest, raw).WithID(12)

	encoded, err := f.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if encoded[len(encoded)-1] != '\n' {
		t.Fatalf("Encode did not terminate with newline")
	}

	decoded, err := Decode(bytes.TrimRight(encoded, "\n"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.ID != f.ID || decoded.Kind != f.Kind || !bytes.Equal(decoded.Msg, f.Msg) {
		t.Errorf("round trip mismatch: got %+v want %+v", decoded, f)
	}
}

func TestFrameWireShapeIsByteArray(t *testing.T) {
	f := New(AddShareObjectRequest, []byte("mango")).WithID(3)
	data, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"id":3,"kind":0,"msg":[109,97,110,103,111]}`
	if string(data) != want {
		t.Errorf("wire form = %s, want %s", data, want)
	}
}

func TestDecodeUnknownKindFails(t *testing.T) {
	_, err := Decode([]byte(`{"id":1,"kind":99,"msg":[]}`))
	if err == nil {
		t.Errorf("expected error decoding unknown kind code, got nil")
	}
}
