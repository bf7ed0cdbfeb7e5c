package ws

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/hireloop/interview-capture/internal/session"
)

func TestEnvelopeDecode(t *testing.T) {
	raw := []byte(`{"event":"start_interview","data":{"interview_id":"iv-1","response_id":"resp-1"}}`)

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if env.Event != "start_interview" {
		t.Fatalf("unexpected event %q", env.Event)
	}
	var data startInterviewData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if data.InterviewID != "iv-1" || data.ResponseID != "resp-1" {
		t.Fatalf("unexpected payload %+v", data)
	}
}

func TestSaveVideoChunkDataOptionalIndex(t *testing.T) {
	var withIndex saveVideoChunkData
	if err := json.Unmarshal([]byte(`{"response_id":"r","chunk":"aGk=","chunk_index":3}`), &withIndex); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if withIndex.ChunkIndex == nil || *withIndex.ChunkIndex != 3 {
		t.Fatalf("expected explicit chunk index 3, got %+v", withIndex.ChunkIndex)
	}

	var withoutIndex saveVideoChunkData
	if err := json.Unmarshal([]byte(`{"response_id":"r","chunk":"aGk="}`), &withoutIndex); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if withoutIndex.ChunkIndex != nil {
		t.Fatal("expected absent chunk index to stay nil")
	}
}

func TestAckPayloadOmitsEmptyFields(t *testing.T) {
	data, err := json.Marshal(ackPayload{OK: true, SessionID: "iv-1_resp-1"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"ok":true,"session_id":"iv-1_resp-1"}`
	if string(data) != want {
		t.Fatalf("unexpected ack json %s", data)
	}
}

func TestStartErrorCode(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{session.ErrInterviewNotFound, "not_found"},
		{session.ErrInterviewClosed, "forbidden"},
		{session.ErrResponseEnded, "forbidden"},
		{errors.New("boom"), "internal"},
	}
	for _, c := range cases {
		if got := startErrorCode(c.err); got != c.want {
			t.Fatalf("startErrorCode(%v) = %q, want %q", c.err, got, c.want)
		}
	}
}
