package broadcast

import (
	"testing"
	"time"

	"cliffhop/server/internal/protocol"
	"cliffhop/server/internal/sim"
)

type fakeClient struct {
	id       string
	frames   [][]byte
	buffered int
	fail     error
}

func (c *fakeClient) SessionID() string { return c.id }
func (c *fakeClient) Deliver(frame []byte) error {
	if c.fail != nil {
		return c.fail
	}
	c.frames = append(c.frames, frame)
	return nil
}
func (c *fakeClient) BufferedBytes() int { return c.buffered }

func stepResult(tick uint64) sim.LoopStepResult {
	return sim.LoopStepResult{
		Tick: tick,
		Now:  time.Unix(0, 0),
		Snapshot: sim.Snapshot{
			Tick:  tick,
			Stage: "flat",
			Actors: []sim.ActorSnapshot{
				{ID: "p1", Kind: sim.KindPlayer, PlayerID: "p1", X: 100, Y: 648, Lives: 3},
			},
		},
	}
}

func TestDispatcherMarshalsOnceAndFansOut(t *testing.T) {
	d := NewDispatcher(Config{}, nil, nil, nil, nil)
	a := &fakeClient{id: "s1"}
	b := &fakeClient{id: "s2"}
	d.Attach(a)
	d.Attach(b)
	d.BroadcastStep(stepResult(1))
	if len(a.frames) != 1 || len(b.frames) != 1 {
		t.Fatalf("expected one frame each, got %d and %d", len(a.frames), len(b.frames))
	}
	if string(a.frames[0]) != string(b.frames[0]) {
		t.Fatalf("clients must receive the identical frame")
	}
	env, err := protocol.Decode(a.frames[0])
	if err != nil {
		t.Fatalf("frame does not decode: %v", err)
	}
	if env.Type != protocol.TypeKeyframe {
		t.Fatalf("first broadcast must be a keyframe, got %s", env.Type)
	}
	payload, err := protocol.DecodePayload[StatePayload](env)
	if err != nil {
		t.Fatalf("payload decode: %v", err)
	}
	if payload.Tick != 1 || len(payload.Actors) != 1 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestDispatcherDropsSaturatedClient(t *testing.T) {
	var dropped, reason string
	d := NewDispatcher(Config{BufferThreshold: 1024}, nil, nil, nil, func(id, why string) {
		dropped, reason = id, why
	})
	slow := &fakeClient{id: "slow", buffered: 4096}
	fine := &fakeClient{id: "fine"}
	d.Attach(slow)
	d.Attach(fine)
	d.BroadcastStep(stepResult(1))
	if dropped != "slow" || reason != "slow_client" {
		t.Fatalf("expected slow client dropped, got %q/%q", dropped, reason)
	}
	if d.ClientCount() != 1 {
		t.Fatalf("expected one remaining client, got %d", d.ClientCount())
	}
	if len(slow.frames) != 0 {
		t.Fatalf("saturated client must not receive the frame")
	}
	if len(fine.frames) != 1 {
		t.Fatalf("healthy client must still receive the frame")
	}
}

func TestDispatcherDropsOnDeliverSaturation(t *testing.T) {
	var reason string
	d := NewDispatcher(Config{}, nil, nil, nil, func(_, why string) { reason = why })
	c := &fakeClient{id: "s1", fail: ErrClientSaturated}
	d.Attach(c)
	d.BroadcastStep(stepResult(1))
	if reason != "slow_client" {
		t.Fatalf("expected slow_client reason, got %q", reason)
	}
	if d.ClientCount() != 0 {
		t.Fatalf("failed client must be detached")
	}
}

func TestDispatcherKeyframeOnAttach(t *testing.T) {
	d := NewDispatcher(Config{KeyframeInterval: 1000}, nil, nil, nil, nil)
	a := &fakeClient{id: "s1"}
	d.Attach(a)
	d.BroadcastStep(stepResult(1))
	d.BroadcastStep(stepResult(2))

	late := &fakeClient{id: "s2"}
	d.Attach(late)
	d.BroadcastStep(stepResult(3))
	env, err := protocol.Decode(late.frames[0])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Type != protocol.TypeKeyframe {
		t.Fatalf("late joiner must receive a keyframe, got %s", env.Type)
	}
}
