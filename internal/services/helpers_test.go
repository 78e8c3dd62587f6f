package services

import (
	"context"
	"fmt"
)

// stubEmbedder returns canned vectors per query text. Unknown queries embed
// as an error, which exercises the "no embedding" degradation paths.
type stubEmbedder struct {
	vectors map[string][]float32
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := s.vectors[text]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("no embedding for %q", text)
}

// stubGenerator answers every escalation with a fixed reply, or fails.
type stubGenerator struct {
	reply string
	err   error
	calls int
}

func (s *stubGenerator) Generate(ctx context.Context, text string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}
