package peer

import (
	"errors"
	"testing"

	"github.com/dkeye/Plaza/internal/domain"
	"github.com/dkeye/Plaza/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connectPair(t *testing.T, a, b *side) {
	t.Helper()
	a.calls.Evaluate(reading(b.id, 14.1))
	b.calls.Evaluate(reading(a.id, 14.1))
	pump(t, a, b)
}

func TestGreaterIDInitiatesOnce(t *testing.T) {
	a, b := newSide("A"), newSide("B")
	connectPair(t, a, b)

	assert.Empty(t, a.offers())
	assert.Equal(t, map[domain.ParticipantID]int{"A": 1}, b.offers())

	st, ok := a.callState("B")
	require.True(t, ok)
	assert.Equal(t, Connected, st)
	st, ok = b.callState("A")
	require.True(t, ok)
	assert.Equal(t, Connected, st)

	info, _ := b.calls.Record("A")
	assert.Equal(t, domain.RoleInitiator, info.Role)
	info, _ = a.calls.Record("B")
	assert.Equal(t, domain.RoleResponder, info.Role)

	// repeated in-range ticks change nothing
	b.calls.Evaluate(reading("A", 10))
	a.calls.Evaluate(reading("B", 10))
	pump(t, a, b)
	assert.Equal(t, 1, b.offers()["A"])
	assert.Len(t, b.factory.Of("A", domain.ChannelAmbient), 1)
}

func TestLesserIDWaits(t *testing.T) {
	a := newSide("A")
	a.calls.Evaluate(reading("B", 10))
	a.loop.Drain()
	_, ok := a.calls.Record("B")
	assert.False(t, ok)
	assert.Zero(t, a.factory.Count())
}

func TestTeardownOnExit(t *testing.T) {
	a, b := newSide("A"), newSide("B")
	connectPair(t, a, b)
	ta := a.factory.Last("B", domain.ChannelAmbient)
	tb := b.factory.Last("A", domain.ChannelAmbient)

	b.calls.Evaluate(reading("A", 2800))
	a.calls.Evaluate(reading("B", 2800))
	pump(t, a, b)

	assert.Empty(t, a.calls.Snapshot())
	assert.Empty(t, b.calls.Snapshot())
	assert.True(t, ta.Closed())
	assert.True(t, tb.Closed())

	last := b.states[len(b.states)-1]
	assert.Equal(t, Idle, last.State)
	assert.Equal(t, Closing, b.states[len(b.states)-2].State)
}

func TestReentryStartsFresh(t *testing.T) {
	a, b := newSide("A"), newSide("B")
	for cycle := 1; cycle <= 3; cycle++ {
		connectPair(t, a, b)
		st, _ := a.callState("B")
		require.Equal(t, Connected, st, "cycle %d", cycle)
		assert.Equal(t, cycle, b.offers()["A"])

		a.calls.Evaluate(reading("B", 500))
		b.calls.Evaluate(reading("A", 500))
		pump(t, a, b)
		require.Empty(t, a.calls.Snapshot())
		require.Empty(t, b.calls.Snapshot())
	}
	all := b.factory.Of("A", domain.ChannelAmbient)
	require.Len(t, all, 3)
	for _, tr := range all {
		assert.True(t, tr.Closed())
		// each transport saw exactly one answer
		assert.Len(t, tr.Remote(), 1)
	}
}

func TestOneSidedExitClosesBoth(t *testing.T) {
	a, b := newSide("A"), newSide("B")
	connectPair(t, a, b)

	// only A notices; B's next tick sees the same distance
	a.calls.Evaluate(reading("B", 151))
	pump(t, a, b)
	_, ok := a.calls.Record("B")
	assert.False(t, ok)

	b.calls.Evaluate(reading("A", 151))
	pump(t, a, b)
	_, ok = b.calls.Record("A")
	assert.False(t, ok)
}

func TestStaleAnswerDiscarded(t *testing.T) {
	a := newSide("A")
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"}
	a.calls.HandleSignal("B", protocol.SignalPayload{SDP: &offer})
	st, ok := a.callState("B")
	require.True(t, ok)
	require.Equal(t, Answering, st)

	step, ok := a.loop.TakeStep()
	require.True(t, ok)
	cont := step()

	a.calls.Evaluate(reading("B", 900))
	cont()
	a.loop.Drain()

	assert.Empty(t, a.sig.Take())
	_, ok = a.calls.Record("B")
	assert.False(t, ok)
	assert.True(t, a.factory.Last("B", domain.ChannelAmbient).Closed())
}

func TestStaleOfferDiscardedAfterReentry(t *testing.T) {
	b := newSide("B")
	b.calls.Evaluate(reading("A", 10))
	first, ok := b.loop.TakeStep()
	require.True(t, ok)

	b.calls.Evaluate(reading("A", 900))
	b.calls.Evaluate(reading("A", 10))
	// the first attempt completes after the second began
	first()()
	assert.Empty(t, b.sig.Take())

	b.loop.Drain()
	sent := b.sig.Take()
	require.Len(t, sent, 1)
	assert.Equal(t, webrtc.SDPTypeOffer, sent[0].Signal.SDP.Type)
	st, _ := b.callState("A")
	assert.Equal(t, Offering, st)
	assert.Len(t, b.factory.Of("A", domain.ChannelAmbient), 2)
}

func TestCandidatesHeldUntilRemoteApplied(t *testing.T) {
	a := newSide("A")
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"}
	cand := webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 1 10.0.0.1 5000 typ host"}

	a.calls.HandleSignal("B", protocol.SignalPayload{SDP: &offer})
	a.calls.HandleSignal("B", protocol.SignalPayload{Candidate: &cand})
	tr := a.factory.Last("B", domain.ChannelAmbient)
	assert.Empty(t, tr.Candidates())

	a.loop.Drain()
	assert.Equal(t, []webrtc.ICECandidateInit{cand}, tr.Candidates())

	a.calls.HandleSignal("B", protocol.SignalPayload{Candidate: &cand})
	assert.Len(t, tr.Candidates(), 2)
}

func TestStaleCandidateDropped(t *testing.T) {
	a := newSide("A")
	cand := webrtc.ICECandidateInit{Candidate: "candidate:1"}
	a.calls.HandleSignal("B", protocol.SignalPayload{Candidate: &cand})
	assert.Empty(t, a.calls.Snapshot())
	assert.Zero(t, a.factory.Count())
}

func TestLocalCandidatesForwarded(t *testing.T) {
	b := newSide("B")
	b.calls.Evaluate(reading("A", 10))
	b.loop.Drain()
	b.sig.Take()

	tr := b.factory.Last("A", domain.ChannelAmbient)
	tr.EmitCandidate(webrtc.ICECandidateInit{Candidate: "candidate:2"})
	b.loop.Drain()
	sent := b.sig.Take()
	require.Len(t, sent, 1)
	assert.Equal(t, domain.ParticipantID("A"), sent[0].To)
	require.NotNil(t, sent[0].Signal.Candidate)

	b.calls.Abort("A")
	tr.EmitCandidate(webrtc.ICECandidateInit{Candidate: "candidate:3"})
	b.loop.Drain()
	assert.Empty(t, b.sig.Take())
}

func TestTransportFailureReturnsToIdle(t *testing.T) {
	a, b := newSide("A"), newSide("B")
	connectPair(t, a, b)
	tr := a.factory.Last("B", domain.ChannelAmbient)

	tr.Fail(errors.New("ice failed"))
	a.loop.Drain()
	_, ok := a.calls.Record("B")
	assert.False(t, ok)
	assert.True(t, tr.Closed())

	// a second report from the dead link is ignored
	tr.Fail(errors.New("ice failed"))
	a.loop.Drain()
	assert.Empty(t, a.calls.Snapshot())
}

func TestOfferFailureReturnsToIdle(t *testing.T) {
	b := newSide("B")
	b.calls.Evaluate(reading("A", 10))
	b.factory.Last("A", domain.ChannelAmbient).FailOffers(errors.New("boom"))
	b.loop.Drain()
	assert.Empty(t, b.calls.Snapshot())
	assert.Empty(t, b.sig.Take())

	// next tick retries
	b.calls.Evaluate(reading("A", 10))
	b.loop.Drain()
	assert.Len(t, b.sig.Take(), 1)
}

func TestTransportCreationFailure(t *testing.T) {
	b := newSide("B")
	b.factory.Err = errors.New("no api")
	b.calls.Evaluate(reading("A", 10))
	assert.Empty(t, b.calls.Snapshot())
}

func TestAbortFromAnyState(t *testing.T) {
	b := newSide("B")
	b.calls.Evaluate(reading("A", 10))
	st, _ := b.callState("A")
	require.Equal(t, Offering, st)

	b.calls.Abort("A")
	b.calls.Abort("A")
	b.loop.Drain()
	assert.Empty(t, b.calls.Snapshot())
	assert.Empty(t, b.sig.Take())
	assert.True(t, b.factory.Last("A", domain.ChannelAmbient).Closed())
}

func TestInitiatorDropsOffer(t *testing.T) {
	b := newSide("B")
	b.calls.Evaluate(reading("A", 10))
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"}
	b.calls.HandleSignal("A", protocol.SignalPayload{SDP: &offer})

	info, ok := b.calls.Record("A")
	require.True(t, ok)
	assert.Equal(t, domain.RoleInitiator, info.Role)
	assert.Len(t, b.factory.Of("A", domain.ChannelAmbient), 1)
}

func TestResponderRestartsOnNewOffer(t *testing.T) {
	a, b := newSide("A"), newSide("B")
	connectPair(t, a, b)
	old := a.factory.Last("B", domain.ChannelAmbient)

	// B tore down and came back before A noticed
	b.calls.Abort("A")
	b.calls.Evaluate(reading("A", 10))
	pump(t, a, b)

	assert.True(t, old.Closed())
	st, _ := a.callState("B")
	assert.Equal(t, Connected, st)
	assert.Len(t, a.factory.Of("B", domain.ChannelAmbient), 2)
}

func TestUnexpectedAnswerDropped(t *testing.T) {
	a := newSide("A")
	ans := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"}
	a.calls.HandleSignal("B", protocol.SignalPayload{SDP: &ans})
	assert.Empty(t, a.calls.Snapshot())

	b := newSide("B")
	b.calls.Evaluate(reading("A", 10))
	// answer before the offer went out
	b.calls.HandleSignal("A", protocol.SignalPayload{SDP: &ans})
	assert.Empty(t, b.factory.Last("A", domain.ChannelAmbient).Remote())
}

func TestMediaDegrades(t *testing.T) {
	b := newSide("B")
	b.media.SetDevices(false, true)
	b.calls.Evaluate(reading("A", 10))
	b.loop.Drain()
	tr := b.factory.Last("A", domain.ChannelAmbient)
	require.Len(t, tr.Tracks(), 1)
	assert.Equal(t, "audio", tr.Tracks()[0].Kind().String())
	assert.Equal(t, 2, b.media.UserCalls())
}

func TestNoMediaStillConnects(t *testing.T) {
	a, b := newSide("A"), newSide("B")
	b.media.SetDevices(false, false)
	connectPair(t, a, b)

	tr := b.factory.Last("A", domain.ChannelAmbient)
	assert.Empty(t, tr.Tracks())
	assert.Equal(t, 1, tr.MediaCalls())
	st, _ := b.callState("A")
	assert.Equal(t, Connected, st)

	// the failure is not remembered
	b.media.SetDevices(true, true)
	b.calls.Evaluate(reading("C", 10))
	b.loop.Drain()
	assert.Len(t, b.factory.Last("C", domain.ChannelAmbient).Tracks(), 2)
}

func TestCaptureSharedAcrossLinks(t *testing.T) {
	c := newSide("C")
	c.calls.Evaluate(append(reading("A", 10), reading("B", 20)...))
	c.loop.Drain()
	assert.Equal(t, 1, c.media.UserCalls())
	assert.Len(t, c.sig.Take(), 2)

	c.calls.Close()
	c.loop.Drain()
	assert.True(t, c.media.LastUser().Closed())
	assert.Empty(t, c.calls.Snapshot())
}

func TestCandidateGatheredBeforeOfferFollowsIt(t *testing.T) {
	a, b := newSide("A"), newSide("B")
	b.calls.Evaluate(reading("A", 10))
	step, ok := b.loop.TakeStep()
	require.True(t, ok)
	cont := step()

	cand := webrtc.ICECandidateInit{Candidate: "candidate:early"}
	b.factory.Last("A", domain.ChannelAmbient).EmitCandidate(cand)
	b.loop.Drain()
	assert.Empty(t, b.sig.Take(), "nothing leaves before the offer")

	cont()
	a.calls.Evaluate(reading("B", 10))
	pump(t, a, b)

	require.GreaterOrEqual(t, len(b.log), 2)
	require.NotNil(t, b.log[0].Signal.SDP)
	assert.Equal(t, webrtc.SDPTypeOffer, b.log[0].Signal.SDP.Type)
	require.NotNil(t, b.log[1].Signal.Candidate)
	assert.Equal(t, cand, *b.log[1].Signal.Candidate)

	assert.Equal(t, []webrtc.ICECandidateInit{cand}, a.factory.Last("B", domain.ChannelAmbient).Candidates())
	st, _ := a.callState("B")
	assert.Equal(t, Connected, st)
}

func TestHeldCandidatesDroppedOnTeardown(t *testing.T) {
	b := newSide("B")
	b.calls.Evaluate(reading("A", 10))
	step, ok := b.loop.TakeStep()
	require.True(t, ok)
	cont := step()

	b.factory.Last("A", domain.ChannelAmbient).EmitCandidate(webrtc.ICECandidateInit{Candidate: "candidate:1"})
	b.loop.Drain()
	b.calls.Abort("A")
	cont()
	b.loop.Drain()
	assert.Empty(t, b.sig.Take())
}
