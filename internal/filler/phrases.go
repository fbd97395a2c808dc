package filler

import "hash/fnv"

// Phrase tables are per tool so the filler can match the expected wait: a
// calculator answers near-instantly, a weather lookup does not, and the phrase
// length should not outlast the work it covers.
var phraseTables = map[string][]string{
	"get_weather": {
		"Let me check the weather for you.",
		"One moment while I look that up.",
		"Checking the forecast now.",
		"Let me pull up the latest conditions.",
	},
	"get_time": {
		"Let me check.",
		"One second.",
		"Checking the time.",
	},
	"calculator": {
		"Let me work that out.",
		"One moment.",
		"Calculating.",
	},
	"set_reminder": {
		"Setting that up for you.",
		"One moment, saving that.",
		"Let me note that down.",
	},
}

var defaultPhrases = []string{
	"One moment.",
	"Let me look into that.",
	"Just a second.",
}

// Selector picks filler phrases deterministically. The same (seed, tool, call
// id) triple always yields the same phrase, which keeps conversations
// reproducible in tests and replay.
type Selector struct {
	seed int64
}

func NewSelector(seed int64) *Selector {
	return &Selector{seed: seed}
}

func (s *Selector) Phrase(tool, callID string) string {
	table, ok := phraseTables[tool]
	if !ok || len(table) == 0 {
		table = defaultPhrases
	}
	h := fnv.New64a()
	var seedBytes [8]byte
	for i := 0; i < 8; i++ {
		seedBytes[i] = byte(s.seed >> (8 * i))
	}
	_, _ = h.Write(seedBytes[:])
	_, _ = h.Write([]byte(tool))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(callID))
	return table[int(h.Sum64()%uint64(len(table)))]
}
