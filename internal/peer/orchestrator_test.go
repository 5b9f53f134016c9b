package peer

import (
	"errors"
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Cowork/internal/domain"
)

type fakeMedia struct {
	remote domain.ConnID

	createOfferErr error
	applyOfferErr  error
	applyAnswerErr error

	appliedOffer  *webrtc.SessionDescription
	appliedAnswer *webrtc.SessionDescription
	candidates    []webrtc.ICECandidateInit
	closed        bool
	onICE         func(webrtc.ICECandidateInit)
}

func (m *fakeMedia) CreateOffer() (webrtc.SessionDescription, error) {
	if m.createOfferErr != nil {
		return webrtc.SessionDescription{}, m.createOfferErr
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer-" + string(m.remote)}, nil
}

func (m *fakeMedia) ApplyOfferAndCreateAnswer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if m.applyOfferErr != nil {
		return nil, m.applyOfferErr
	}
	m.appliedOffer = &offer
	return &webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer-" + string(m.remote)}, nil
}

func (m *fakeMedia) ApplyAnswer(answer webrtc.SessionDescription) error {
	if m.applyAnswerErr != nil {
		return m.applyAnswerErr
	}
	m.appliedAnswer = &answer
	return nil
}

func (m *fakeMedia) AddICECandidate(ci webrtc.ICECandidateInit) error {
	m.candidates = append(m.candidates, ci)
	return nil
}

func (m *fakeMedia) OnICECandidate(fn func(webrtc.ICECandidateInit)) { m.onICE = fn }

func (m *fakeMedia) Close() { m.closed = true }

type fakeSender struct {
	sent    []any
	sendErr error
}

func (s *fakeSender) Send(v any) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, v)
	return nil
}

func (s *fakeSender) offers() []offerOut {
	var out []offerOut
	for _, v := range s.sent {
		if o, ok := v.(offerOut); ok {
			out = append(out, o)
		}
	}
	return out
}

func (s *fakeSender) answers() []answerOut {
	var out []answerOut
	for _, v := range s.sent {
		if a, ok := v.(answerOut); ok {
			out = append(out, a)
		}
	}
	return out
}

type orchFixture struct {
	orch   *Orchestrator
	sender *fakeSender
	media  map[domain.ConnID]*fakeMedia
}

func newOrchFixture(self domain.ConnID) *orchFixture {
	f := &orchFixture{
		sender: &fakeSender{},
		media:  make(map[domain.ConnID]*fakeMedia),
	}
	f.orch = NewOrchestrator(self, f.sender, func(remote domain.ConnID) (MediaLink, error) {
		m := &fakeMedia{remote: remote}
		f.media[remote] = m
		return m, nil
	})
	return f
}

func candidate(s string) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{Candidate: s}
}

func TestOrchestrator_OffersOnUserJoined(t *testing.T) {
	f := newOrchFixture("me")

	f.orch.OnUserJoined("peer")

	offers := f.sender.offers()
	if len(offers) != 1 {
		t.Fatalf("sent %d offers, want 1", len(offers))
	}
	if offers[0].SDP != "offer-peer" {
		t.Fatalf("offer sdp=%q", offers[0].SDP)
	}
	if state, ok := f.orch.LinkState("peer"); !ok || state != LinkOffering {
		t.Fatalf("state=%v/%v, want offering", state, ok)
	}

	// A repeated join notice must not spawn a second negotiation.
	f.orch.OnUserJoined("peer")
	if got := f.sender.offers(); len(got) != 1 {
		t.Fatalf("sent %d offers after duplicate notice, want 1", len(got))
	}
}

func TestOrchestrator_AnswersOfferWhenIdle(t *testing.T) {
	f := newOrchFixture("me")

	f.orch.OnOffer("peer", "their-offer")

	answers := f.sender.answers()
	if len(answers) != 1 {
		t.Fatalf("sent %d answers, want 1", len(answers))
	}
	if answers[0].Target != "peer" || answers[0].SDP != "answer-peer" {
		t.Fatalf("answer=%+v", answers[0])
	}
	if f.media["peer"].appliedOffer == nil || f.media["peer"].appliedOffer.SDP != "their-offer" {
		t.Fatalf("remote offer not applied")
	}
	if state, _ := f.orch.LinkState("peer"); state != LinkConnected {
		t.Fatalf("state=%v, want connected", state)
	}
}

func TestOrchestrator_AnswerCompletesOwnOffer(t *testing.T) {
	f := newOrchFixture("me")
	f.orch.OnUserJoined("peer")

	f.orch.OnAnswer("peer", "their-answer")

	if f.media["peer"].appliedAnswer == nil || f.media["peer"].appliedAnswer.SDP != "their-answer" {
		t.Fatalf("answer not applied")
	}
	if state, _ := f.orch.LinkState("peer"); state != LinkConnected {
		t.Fatalf("state=%v, want connected", state)
	}
}

func TestOrchestrator_StaleAnswerIgnored(t *testing.T) {
	f := newOrchFixture("me")

	f.orch.OnAnswer("peer", "orphan-answer")
	if f.orch.LinkCount() != 0 {
		t.Fatalf("stale answer created a link")
	}

	f.orch.OnOffer("peer", "their-offer")
	f.orch.OnAnswer("peer", "late-answer")
	if f.media["peer"].appliedAnswer != nil {
		t.Fatalf("answer applied to a connected pair")
	}
}

func TestOrchestrator_BuffersCandidatesUntilRemoteDescription(t *testing.T) {
	f := newOrchFixture("me")
	f.orch.OnUserJoined("peer")

	f.orch.OnCandidate("peer", candidate("c1"))
	f.orch.OnCandidate("peer", candidate("c2"))
	if got := len(f.media["peer"].candidates); got != 0 {
		t.Fatalf("%d candidates applied before remote description", got)
	}

	f.orch.OnAnswer("peer", "their-answer")

	got := f.media["peer"].candidates
	if len(got) != 2 || got[0].Candidate != "c1" || got[1].Candidate != "c2" {
		t.Fatalf("flushed candidates=%v, want [c1 c2] in receipt order", got)
	}

	// Past connected, candidates apply immediately.
	f.orch.OnCandidate("peer", candidate("c3"))
	got = f.media["peer"].candidates
	if len(got) != 3 || got[2].Candidate != "c3" {
		t.Fatalf("late candidate not applied immediately: %v", got)
	}
}

func TestOrchestrator_TeardownOnDisconnect(t *testing.T) {
	f := newOrchFixture("me")
	f.orch.OnUserJoined("peer")
	f.orch.OnCandidate("peer", candidate("c1"))

	f.orch.OnUserDisconnected("peer")

	if !f.media["peer"].closed {
		t.Fatalf("media not closed on teardown")
	}
	if f.orch.LinkCount() != 0 {
		t.Fatalf("link survived teardown")
	}

	// Nothing referencing the departed peer may mutate state anymore.
	f.orch.OnAnswer("peer", "late-answer")
	f.orch.OnCandidate("peer", candidate("c2"))
	if f.orch.LinkCount() != 0 {
		t.Fatalf("late event resurrected the pair")
	}
}

func TestOrchestrator_GlareSmallerIDKeepsInitiatorRole(t *testing.T) {
	f := newOrchFixture("aaa") // smaller than "bbb"
	f.orch.OnUserJoined("bbb")

	f.orch.OnOffer("bbb", "competing-offer")

	if len(f.sender.answers()) != 0 {
		t.Fatalf("smaller id answered a competing offer")
	}
	if state, _ := f.orch.LinkState("bbb"); state != LinkOffering {
		t.Fatalf("state=%v, want still offering", state)
	}
}

func TestOrchestrator_GlareLargerIDYields(t *testing.T) {
	f := newOrchFixture("zzz") // larger than "bbb"
	f.orch.OnUserJoined("bbb")
	first := f.media["bbb"]

	f.orch.OnOffer("bbb", "competing-offer")

	if !first.closed {
		t.Fatalf("abandoned offer's media not closed")
	}
	answers := f.sender.answers()
	if len(answers) != 1 || answers[0].Target != "bbb" {
		t.Fatalf("answers=%+v, want one to bbb", answers)
	}
	if state, _ := f.orch.LinkState("bbb"); state != LinkConnected {
		t.Fatalf("state=%v, want connected", state)
	}
}

func TestOrchestrator_DuplicateOfferDiscardedWhenConnected(t *testing.T) {
	f := newOrchFixture("me")
	f.orch.OnOffer("peer", "their-offer")

	f.orch.OnOffer("peer", "their-offer-again")

	if got := len(f.sender.answers()); got != 1 {
		t.Fatalf("sent %d answers, want 1 (duplicate discarded)", got)
	}
}

func TestOrchestrator_FailedApplyResetsOnlyThatPair(t *testing.T) {
	f := newOrchFixture("me")
	f.orch.OnOffer("good", "offer-good")

	failing := errors.New("malformed sdp")
	origFactory := f.orch.factory
	f.orch.factory = func(remote domain.ConnID) (MediaLink, error) {
		link, err := origFactory(remote)
		if err != nil {
			return nil, err
		}
		f.media[remote].applyOfferErr = failing
		return link, nil
	}

	f.orch.OnOffer("bad", "offer-bad")

	if _, ok := f.orch.LinkState("bad"); ok {
		t.Fatalf("failed pair still tracked")
	}
	if state, _ := f.orch.LinkState("good"); state != LinkConnected {
		t.Fatalf("healthy pair state=%v, want connected", state)
	}
	if !f.media["bad"].closed {
		t.Fatalf("failed pair's media not closed")
	}
}

func TestOrchestrator_HandleFrameDrivesNegotiation(t *testing.T) {
	f := newOrchFixture("me")

	joined := `{"type":"USER_JOINED","participant":{"connectionId":"peer","username":"ben","roomId":"R","status":"ONLINE"}}`
	f.orch.HandleFrame([]byte(joined))
	if len(f.sender.offers()) != 1 {
		t.Fatalf("USER_JOINED frame did not trigger an offer")
	}

	f.orch.HandleFrame([]byte(`{"type":"SIGNAL_ANSWER","from":"peer","sdp":"their-answer"}`))
	if state, _ := f.orch.LinkState("peer"); state != LinkConnected {
		t.Fatalf("state=%v after answer frame, want connected", state)
	}

	f.orch.HandleFrame([]byte(`{"type":"SIGNAL_ICE_CANDIDATE","from":"peer","candidate":{"candidate":"udp 1"}}`))
	if got := f.media["peer"].candidates; len(got) != 1 || got[0].Candidate != "udp 1" {
		t.Fatalf("candidate frame not applied: %v", got)
	}

	f.orch.HandleFrame([]byte(`{"type":"USER_DISCONNECTED","participant":{"connectionId":"peer"}}`))
	if f.orch.LinkCount() != 0 {
		t.Fatalf("disconnect frame did not tear the link down")
	}
}

func TestOrchestrator_MediaFactoryFailureDoesNotWedge(t *testing.T) {
	f := newOrchFixture("me")
	f.orch.factory = func(remote domain.ConnID) (MediaLink, error) {
		return nil, errors.New("no devices")
	}

	f.orch.OnUserJoined("peer")

	if f.orch.LinkCount() != 0 {
		t.Fatalf("failed media setup left a link behind")
	}
	// The next membership event retries naturally.
	f.orch.factory = func(remote domain.ConnID) (MediaLink, error) {
		m := &fakeMedia{remote: remote}
		f.media[remote] = m
		return m, nil
	}
	f.orch.OnUserJoined("peer")
	if len(f.sender.offers()) != 1 {
		t.Fatalf("retry after media failure did not offer")
	}
}
