package telemetry

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"
)

type captureSink struct {
	mu      sync.Mutex
	saved   []Summary
	saveErr error
}

func (s *captureSink) SaveSummary(_ context.Context, sum Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, sum)
	return nil
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-12
}

func TestAggregatorExactCostArithmetic(t *testing.T) {
	a := NewAggregator(DefaultCostModel(), nil, "s1", "room", "job")
	a.Observe(MetricsEvent{Stage: StageLLM, Provider: "openai", TurnID: "t1", InputTokens: 80, OutputTokens: 40, TTFT: 400 * time.Millisecond})
	a.Observe(MetricsEvent{Stage: StageTTS, Provider: "elevenlabs", TurnID: "t1", Characters: 300, TTFB: 200 * time.Millisecond})
	a.Observe(MetricsEvent{Stage: StageSTT, Provider: "deepgram", TurnID: "t1", AudioSeconds: 3.1})
	a.TurnClosed("t1")

	got := a.Close(context.Background(), "normal")

	wantLLM := 80*(5.0/1_000_000) + 40*(15.0/1_000_000)
	wantTTS := 300 * (0.30 / 1_000)
	wantSTT := 3.1 * (0.0125 / 60)
	if !approx(got.CostLLM, wantLLM) || !approx(got.CostTTS, wantTTS) || !approx(got.CostSTT, wantSTT) {
		t.Errorf("stage costs = %v/%v/%v, want %v/%v/%v",
			got.CostLLM, got.CostTTS, got.CostSTT, wantLLM, wantTTS, wantSTT)
	}
	if !approx(got.CostTotal, wantLLM+wantTTS+wantSTT) {
		t.Errorf("total cost = %v, want %v", got.CostTotal, wantLLM+wantTTS+wantSTT)
	}
	if got.InputTokens != 80 || got.OutputTokens != 40 || got.TTSCharacters != 300 || got.STTAudioSeconds != 3.1 {
		t.Errorf("usage totals = %+v", got)
	}
	if got.TurnCount != 1 || got.RequestCount != 1 {
		t.Errorf("turn/request counts = %d/%d", got.TurnCount, got.RequestCount)
	}
	if !approx(got.AvgTTFTSeconds, 0.4) || !approx(got.AvgTTFBSeconds, 0.2) {
		t.Errorf("avg latencies = %v/%v", got.AvgTTFTSeconds, got.AvgTTFBSeconds)
	}
	if len(got.MissingPrices) != 0 {
		t.Errorf("missing prices = %v", got.MissingPrices)
	}
	if got.ShutdownReason != "normal" {
		t.Errorf("shutdown reason = %q", got.ShutdownReason)
	}
}

func TestAggregatorMissingPriceExcludedAndFlagged(t *testing.T) {
	a := NewAggregator(DefaultCostModel(), nil, "s1", "", "")
	a.Observe(MetricsEvent{Stage: StageLLM, Provider: "openai", TurnID: "t1", InputTokens: 100, OutputTokens: 50})
	a.Observe(MetricsEvent{Stage: StageTTS, Provider: "acme-tts", TurnID: "t1", Characters: 500})

	got := a.Close(context.Background(), "normal")

	wantLLM := 100*(5.0/1_000_000) + 50*(15.0/1_000_000)
	if !approx(got.CostTotal, wantLLM) {
		t.Errorf("total cost = %v, want only priced LLM contribution %v", got.CostTotal, wantLLM)
	}
	// The unpriced event is still counted in usage.
	if got.TTSCharacters != 500 {
		t.Errorf("tts characters = %d, want 500", got.TTSCharacters)
	}
	if len(got.MissingPrices) != 1 || got.MissingPrices[0] != "acme-tts/character" {
		t.Errorf("missing prices = %v", got.MissingPrices)
	}
}

func TestAggregatorSplitsFillerFromResponseSpeech(t *testing.T) {
	a := NewAggregator(DefaultCostModel(), nil, "s1", "", "")
	a.Observe(MetricsEvent{Stage: StageTTS, Provider: "elevenlabs", TurnID: "t1", Characters: 20, Tag: TagFiller})
	a.Observe(MetricsEvent{Stage: StageTTS, Provider: "elevenlabs", TurnID: "t1", Characters: 300, Tag: "response"})

	got := a.Close(context.Background(), "normal")
	if got.TTSCharacters != 320 {
		t.Errorf("tts characters = %d, want 320", got.TTSCharacters)
	}
	if got.FillerCharacters != 20 || got.ResponseCharacters != 300 {
		t.Errorf("split = %d/%d, want 20/300", got.FillerCharacters, got.ResponseCharacters)
	}
	// Both kinds of speech are billed.
	wantCost := 320 * (0.30 / 1_000)
	if !approx(got.CostTTS, wantCost) {
		t.Errorf("tts cost = %v, want %v", got.CostTTS, wantCost)
	}
}

func TestAggregatorSessionTotalsEqualTurnSum(t *testing.T) {
	a := NewAggregator(DefaultCostModel(), nil, "s1", "", "")
	var wg sync.WaitGroup
	turns := []string{"t1", "t2", "t3"}
	for i, turnID := range turns {
		wg.Add(1)
		go func(i int, turnID string) {
			defer wg.Done()
			a.Observe(MetricsEvent{Stage: StageLLM, Provider: "openai", TurnID: turnID, InputTokens: int64(10 * (i + 1)), OutputTokens: int64(5 * (i + 1))})
			a.Observe(MetricsEvent{Stage: StageTTS, Provider: "elevenlabs", TurnID: turnID, Characters: int64(100 * (i + 1))})
			a.Observe(MetricsEvent{Stage: StageSTT, Provider: "deepgram", TurnID: turnID, AudioSeconds: float64(i + 1)})
		}(i, turnID)
	}
	wg.Wait()
	for _, turnID := range turns {
		a.TurnClosed(turnID)
	}

	snap := a.Snapshot()
	if len(snap.Turns) != 3 {
		t.Fatalf("turns = %d, want 3", len(snap.Turns))
	}
	var sumIn, sumOut, sumChars int64
	var sumAudio, sumCost float64
	for _, turn := range snap.Turns {
		sumIn += turn.InputTokens
		sumOut += turn.OutputTokens
		sumChars += turn.TTSCharacters
		sumAudio += turn.STTAudioSeconds
		sumCost += turn.Cost
	}
	if sumIn != snap.InputTokens || sumOut != snap.OutputTokens || sumChars != snap.TTSCharacters {
		t.Errorf("turn sums %d/%d/%d != session totals %d/%d/%d",
			sumIn, sumOut, sumChars, snap.InputTokens, snap.OutputTokens, snap.TTSCharacters)
	}
	if !approx(sumAudio, snap.STTAudioSeconds) || !approx(sumCost, snap.CostTotal) {
		t.Errorf("turn sums audio=%v cost=%v != session %v/%v",
			sumAudio, sumCost, snap.STTAudioSeconds, snap.CostTotal)
	}
	a.Close(context.Background(), "normal")
}

func TestAggregatorEOUAndTranscript(t *testing.T) {
	a := NewAggregator(DefaultCostModel(), nil, "s1", "", "")
	a.ObserveEOU("t1", 100*time.Millisecond)
	a.ObserveEOU("t2", 300*time.Millisecond)
	a.AppendTranscript("user", "what's the weather in Rome")
	a.AppendTranscript("assistant", "It's sunny in Rome.")
	a.AppendTranscript("user", "")

	got := a.Close(context.Background(), "normal")
	if !approx(got.AvgEOUSeconds, 0.2) {
		t.Errorf("avg eou = %v, want 0.2", got.AvgEOUSeconds)
	}
	if len(got.Transcript) != 2 {
		t.Fatalf("transcript = %+v", got.Transcript)
	}
	if got.Transcript[0].Role != "user" || got.Transcript[1].Role != "assistant" {
		t.Errorf("transcript roles = %+v", got.Transcript)
	}
}

func TestAggregatorFlushesToSink(t *testing.T) {
	sink := &captureSink{}
	a := NewAggregator(DefaultCostModel(), sink, "s1", "room-7", "job-9")
	a.Observe(MetricsEvent{Stage: StageLLM, Provider: "openai", TurnID: "t1", InputTokens: 1})
	a.Close(context.Background(), "timeout")

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.saved) != 1 {
		t.Fatalf("saved = %d summaries", len(sink.saved))
	}
	s := sink.saved[0]
	if s.SessionID != "s1" || s.RoomID != "room-7" || s.JobID != "job-9" || s.ShutdownReason != "timeout" {
		t.Errorf("summary = %+v", s)
	}
}

func TestAggregatorSinkFailureNonFatal(t *testing.T) {
	sink := &captureSink{saveErr: errors.New("db down")}
	a := NewAggregator(DefaultCostModel(), sink, "s1", "", "")
	got := a.Close(context.Background(), "normal")
	if got.SessionID != "s1" {
		t.Errorf("summary lost on sink failure: %+v", got)
	}
}
