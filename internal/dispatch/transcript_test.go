package dispatch

import "testing"

func TestMatchTranscript(t *testing.T) {
	testCases := []struct {
		name     string
		text     string
		expected Command
	}{
		{name: "start phrase", text: "start streaming", expected: CommandStart},
		{name: "stop phrase", text: "stop streaming", expected: CommandStop},
		{name: "embedded start", text: "hey could you start streaming now", expected: CommandStart},
		{name: "embedded stop", text: "please stop streaming now", expected: CommandStop},
		{name: "mixed case", text: "Start Streaming", expected: CommandStart},
		{name: "upper case stop", text: "STOP STREAMING", expected: CommandStop},
		{name: "stop wins over start", text: "start streaming no wait stop streaming", expected: CommandStop},
		{name: "no match", text: "what is the weather", expected: CommandNone},
		{name: "split phrase does not match", text: "start the streaming", expected: CommandNone},
		{name: "empty", text: "", expected: CommandNone},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if got := MatchTranscript(tc.text); got != tc.expected {
				t.Fatalf("expected %q, got %q", tc.expected, got)
			}
		})
	}
}
