package classifier

import (
	"context"
	"errors"
	"strings"
	"testing"

	"yt-digest-bot/content"
)

// stubClient is a scripted DecisionClient that records prompts.
type stubClient struct {
	answers []bool
	errs    []error
	prompts []string
	calls   int
}

func (s *stubClient) Decide(_ context.Context, prompt string) (bool, error) {
	s.prompts = append(s.prompts, prompt)
	i := s.calls
	s.calls++
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	var answer bool
	if i < len(s.answers) {
		answer = s.answers[i]
	}
	return answer, err
}

func TestContentTierRelevantShortCircuits(t *testing.T) {
	client := &stubClient{answers: []bool{true}}
	c := New(client)

	payload := content.Payload{
		Text:       strings.Repeat("economic survey analysis ", 20),
		Provenance: content.ProvenanceTranscript,
	}
	v := c.Classify(context.Background(), Video{ID: "v1", Title: "Some video"}, []string{"gdp"}, payload)

	if v.Result != Relevant {
		t.Errorf("Result = %s, want RELEVANT", v.Result)
	}
	if v.Tier != TierContent {
		t.Errorf("Tier = %s, want %s", v.Tier, TierContent)
	}
	if client.calls != 1 {
		t.Errorf("client called %d times, want 1 (short-circuit)", client.calls)
	}
}

func TestTitleTierRelevantShortCircuits(t *testing.T) {
	client := &stubClient{answers: []bool{true}}
	c := New(client)

	// No payload: content tier skipped, title tier answers YES.
	v := c.Classify(context.Background(), Video{ID: "v1", Title: "RBI policy update"}, []string{"rbi"}, content.Payload{})

	if v.Result != Relevant || v.Tier != TierTitle {
		t.Errorf("got %s via %s, want RELEVANT via %s", v.Result, v.Tier, TierTitle)
	}
	if client.calls != 1 {
		t.Errorf("client called %d times, want 1", client.calls)
	}
}

func TestShortContentSkipsContentTier(t *testing.T) {
	client := &stubClient{answers: []bool{true}}
	c := New(client)

	payload := content.Payload{Text: "too short", Provenance: content.ProvenanceDescription}
	v := c.Classify(context.Background(), Video{Title: "Anything"}, []string{"tax"}, payload)

	if v.Tier != TierTitle {
		t.Errorf("Tier = %s, want %s (content below minimum length)", v.Tier, TierTitle)
	}
	if len(client.prompts) != 1 || strings.Contains(client.prompts[0], "CONTENT:") {
		t.Errorf("expected a title prompt, got %q", client.prompts)
	}
}

func TestContentTruncatedToCap(t *testing.T) {
	client := &stubClient{answers: []bool{true}}
	c := New(client, WithMaxContentLength(3000))

	text := strings.Repeat("a", 10000)
	payload := content.Payload{Text: text, Provenance: content.ProvenanceTranscript}
	c.Classify(context.Background(), Video{Title: "T"}, []string{"tax"}, payload)

	if len(client.prompts) != 1 {
		t.Fatalf("client called %d times, want 1", len(client.prompts))
	}
	if strings.Contains(client.prompts[0], strings.Repeat("a", 3001)) {
		t.Error("prompt contains more than 3000 content characters")
	}
	if !strings.Contains(client.prompts[0], strings.Repeat("a", 3000)) {
		t.Error("prompt does not contain the 3000-character prefix")
	}
}

func TestTopicListCapped(t *testing.T) {
	client := &stubClient{answers: []bool{true}}
	c := New(client, WithTopicCap(6))

	topics := []string{"t1", "t2", "t3", "t4", "t5", "t6", "t7", "t8"}
	c.Classify(context.Background(), Video{Title: "T"}, topics, content.Payload{})

	prompt := client.prompts[0]
	if !strings.Contains(prompt, "t6") {
		t.Error("prompt missing sixth topic")
	}
	if strings.Contains(prompt, "t7") || strings.Contains(prompt, "t8") {
		t.Error("prompt contains topics beyond the cap")
	}
}

func TestLLMNoFallsThroughToKeywordMatch(t *testing.T) {
	// End-to-end scenario: no content, title analysis says NO, the
	// keyword tier finds "budget" in the lower-cased title.
	client := &stubClient{answers: []bool{false}}
	c := New(client)

	v := c.Classify(context.Background(),
		Video{Title: "Union Budget 2026: Key Highlights"},
		[]string{"budget", "gdp", "tax"},
		content.Payload{})

	if v.Result != Relevant {
		t.Errorf("Result = %s, want RELEVANT", v.Result)
	}
	if v.Tier != TierKeyword {
		t.Errorf("Tier = %s, want %s", v.Tier, TierKeyword)
	}
	if v.MatchedKeyword != "budget" {
		t.Errorf("MatchedKeyword = %q, want %q", v.MatchedKeyword, "budget")
	}
}

func TestNoMatchAnywhereIsNotRelevant(t *testing.T) {
	client := &stubClient{answers: []bool{false}}
	c := New(client)

	v := c.Classify(context.Background(),
		Video{Title: "Cricket World Cup Highlights"},
		[]string{"budget", "gdp", "tax"},
		content.Payload{})

	if v.Result != NotRelevant {
		t.Errorf("Result = %s, want NOT_RELEVANT", v.Result)
	}
	if v.Tier != TierKeyword {
		t.Errorf("Tier = %s, want %s", v.Tier, TierKeyword)
	}
}

func TestContentNoSkipsTitleTier(t *testing.T) {
	client := &stubClient{answers: []bool{false}}
	c := New(client)

	payload := content.Payload{
		Text:       strings.Repeat("cricket match commentary ", 20),
		Provenance: content.ProvenanceTranscript,
	}
	v := c.Classify(context.Background(), Video{Title: "Match recap"}, []string{"gdp"}, payload)

	if client.calls != 1 {
		t.Errorf("client called %d times, want 1 (title tier skipped after content NO)", client.calls)
	}
	if v.Tier != TierKeyword {
		t.Errorf("Tier = %s, want %s", v.Tier, TierKeyword)
	}
}

func TestErrorWithoutFallbackSurfacesErrorVerdict(t *testing.T) {
	client := &stubClient{errs: []error{errors.New("rate limited: status 429")}}
	c := New(client, WithFallbackOnError(false))

	v := c.Classify(context.Background(), Video{Title: "Budget special"}, []string{"gdp"}, content.Payload{})

	if v.Result != Error {
		t.Fatalf("Result = %s, want ERROR", v.Result)
	}
	if v.Tier != TierTitle {
		t.Errorf("Tier = %s, want %s", v.Tier, TierTitle)
	}
	if !strings.Contains(v.Reason, "rate limited") {
		t.Errorf("Reason = %q, want rate limit mention", v.Reason)
	}
}

func TestErrorWithFallbackContinuesCascade(t *testing.T) {
	client := &stubClient{errs: []error{errors.New("transport failure")}}
	c := New(client, WithFallbackOnError(true))

	v := c.Classify(context.Background(), Video{Title: "Union Budget analysis"}, []string{"budget"}, content.Payload{})

	if v.Result != Relevant || v.Tier != TierKeyword {
		t.Errorf("got %s via %s, want RELEVANT via %s", v.Result, v.Tier, TierKeyword)
	}
}

func TestErrorReasonTruncated(t *testing.T) {
	long := strings.Repeat("x", 500)
	client := &stubClient{errs: []error{errors.New(long)}}
	c := New(client, WithFallbackOnError(false))

	v := c.Classify(context.Background(), Video{Title: "T"}, []string{"gdp"}, content.Payload{})

	if len(v.Reason) != 100 {
		t.Errorf("Reason length = %d, want 100", len(v.Reason))
	}
}

func TestNilClientDegradesToKeywordMatch(t *testing.T) {
	c := New(nil)

	payload := content.Payload{
		Text:       strings.Repeat("long enough content for the first tier ", 10),
		Provenance: content.ProvenanceTranscript,
	}
	v := c.Classify(context.Background(), Video{Title: "GDP growth slows"}, []string{"inflation"}, payload)

	if v.Result != Relevant || v.Tier != TierKeyword {
		t.Errorf("got %s via %s, want RELEVANT via %s", v.Result, v.Tier, TierKeyword)
	}
	if v.MatchedKeyword != "gdp" {
		t.Errorf("MatchedKeyword = %q, want domain term %q", v.MatchedKeyword, "gdp")
	}
}

func TestKeywordTierNeverErrors(t *testing.T) {
	c := New(nil)

	cases := []struct {
		name   string
		title  string
		topics []string
	}{
		{"empty title", "", []string{"budget"}},
		{"whitespace title", "   \t ", []string{"budget"}},
		{"empty topics", "Some random video", nil},
		{"empty everything", "", nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := c.Classify(context.Background(), Video{Title: tc.title}, tc.topics, content.Payload{})
			if v.Result == Error {
				t.Errorf("keyword tier returned ERROR for %q", tc.title)
			}
			if v.Result != Relevant && v.Result != NotRelevant {
				t.Errorf("Result = %s, want a binary verdict", v.Result)
			}
		})
	}
}

func TestKeywordMatchCaseInsensitive(t *testing.T) {
	c := New(nil)

	v := c.Classify(context.Background(), Video{Title: "UNION BUDGET LIVE"}, []string{"Budget"}, content.Payload{})
	if v.Result != Relevant {
		t.Errorf("Result = %s, want RELEVANT for case-insensitive match", v.Result)
	}
}

func TestKeywordMatchFirstMatchWins(t *testing.T) {
	c := New(nil)

	v := c.Classify(context.Background(), Video{Title: "Budget and tax explained"}, []string{"tax", "budget"}, content.Payload{})
	if v.MatchedKeyword != "tax" {
		t.Errorf("MatchedKeyword = %q, want first topic in order (%q)", v.MatchedKeyword, "tax")
	}
}

func TestClassifyDeterministic(t *testing.T) {
	payload := content.Payload{
		Text:       strings.Repeat("fiscal policy discussion ", 20),
		Provenance: content.ProvenanceSubtitle,
	}
	video := Video{Title: "Fiscal outlook"}
	topics := []string{"fiscal"}

	var first Verdict
	for i := 0; i < 5; i++ {
		client := &stubClient{answers: []bool{true}}
		c := New(client)
		v := c.Classify(context.Background(), video, topics, payload)
		if i == 0 {
			first = v
			continue
		}
		if v != first {
			t.Fatalf("call %d verdict %+v differs from first %+v", i, v, first)
		}
	}
}
