package pipeline

import (
	"strings"

	"github.com/jdkato/prose/v2"
)

// sentenceSplitter turns streamed response text into complete sentences
// so synthesis can be flushed one sentence at a time. It holds back the
// unfinished tail until later chunks complete it. Confined to a single
// consumer; not safe for concurrent use.
type sentenceSplitter struct {
	pending string
}

// Push appends a streamed chunk and returns the sentences it completed,
// in order. It returns nil while no sentence boundary has been crossed.
func (s *sentenceSplitter) Push(chunk string) []string {
	s.pending += chunk
	if strings.TrimSpace(s.pending) == "" {
		return nil
	}

	sentences := segmentSentences(s.pending)
	if len(sentences) == 0 {
		return nil
	}

	complete := sentences
	if !endsSentence(sentences[len(sentences)-1]) {
		complete = sentences[:len(sentences)-1]
	}
	if len(complete) == 0 {
		return nil
	}

	if len(complete) == len(sentences) {
		s.pending = ""
	} else {
		s.pending = sentences[len(sentences)-1]
	}
	return complete
}

// Flush returns whatever text is still pending, sentence-complete or not,
// and empties the splitter.
func (s *sentenceSplitter) Flush() string {
	remainder := strings.TrimSpace(s.pending)
	s.pending = ""
	return remainder
}

func segmentSentences(text string) []string {
	doc, err := prose.NewDocument(text,
		prose.WithTokenization(false),
		prose.WithTagging(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		return nil
	}

	sentences := doc.Sentences()
	segments := make([]string, 0, len(sentences))
	for _, sentence := range sentences {
		if trimmed := strings.TrimSpace(sentence.Text); trimmed != "" {
			segments = append(segments, trimmed)
		}
	}
	return segments
}

func endsSentence(text string) bool {
	trimmed := strings.TrimRight(text, " \t\n\r")
	if trimmed == "" {
		return false
	}
	return strings.ContainsAny(trimmed[len(trimmed)-1:], ".?!")
}
