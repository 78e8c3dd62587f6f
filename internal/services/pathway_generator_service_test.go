package services

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"reflex/internal/models"
)

var sortingQueries = map[string][]float32{
	"write a sorting function in python":  {1.00, 0.00, 0.00},
	"write sorting function for numbers":  {0.97, 0.10, 0.00},
	"how do i write a sorting function":   {0.95, 0.15, 0.00},
	"best pizza toppings for a birthday":  {0.00, 0.00, 1.00},
	"reset my password right now":         {0.00, 1.00, 0.00},
	"password reset is not working today": {0.05, 0.98, 0.00},
	"need a password reset link again":    {0.00, 0.95, 0.10},
}

func newTestGenerator(store *PathwayStore, threshold int) *PathwayGeneratorService {
	return NewPathwayGeneratorService(store, &stubEmbedder{vectors: sortingQueries}, GeneratorConfig{
		BufferCapacity: 50,
		Threshold:      threshold,
		MinSimilarity:  0.8,
		MinClusterSize: 3,
	})
}

func trackAll(t *testing.T, gen *PathwayGeneratorService, queries ...string) {
	t.Helper()
	for _, q := range queries {
		gen.Track(context.Background(), q, "canned answer for "+q)
	}
}

func TestGenerator_ClusterCreatesPathway(t *testing.T) {
	store := NewPathwayStore(100)
	gen := newTestGenerator(store, 100)

	trackAll(t, gen,
		"write a sorting function in python",
		"write sorting function for numbers",
		"how do i write a sorting function",
	)

	if created := gen.GeneratePass(); created != 1 {
		t.Fatalf("Expected 1 pathway created, got %d", created)
	}
	if gen.PendingCount() != 0 {
		t.Errorf("Consumed cluster should leave nothing pending, got %d", gen.PendingCount())
	}

	pathways := store.All()
	if len(pathways) != 1 {
		t.Fatalf("Expected 1 pathway in store, got %d", len(pathways))
	}
	p := pathways[0]
	if !strings.HasPrefix(p.ID, "gen-") {
		t.Errorf("Generated id should carry the gen- prefix, got %s", p.ID)
	}
	if p.Tier != models.TierCold {
		t.Errorf("Generated pathways start cold, got %s", p.Tier)
	}
	if p.Category != "auto_generated" {
		t.Errorf("Expected auto_generated category, got %s", p.Category)
	}
	if p.ConfidenceThreshold != GeneratedThreshold {
		t.Errorf("Expected threshold %.2f, got %.2f", GeneratedThreshold, p.ConfidenceThreshold)
	}
	// "write", "sorting", "function" each appear three times; one-off words
	// never make the trigger list.
	want := map[string]bool{"write": true, "sorting": true, "function": true}
	if len(p.Triggers) != len(want) {
		t.Fatalf("Expected triggers %v, got %v", want, p.Triggers)
	}
	for _, trig := range p.Triggers {
		if !want[trig] {
			t.Errorf("Unexpected trigger %q in %v", trig, p.Triggers)
		}
	}
	if p.ResponseTemplate != "canned answer for write a sorting function in python" {
		t.Errorf("Expected the cluster seed's response, got %q", p.ResponseTemplate)
	}
}

func TestGenerator_SmallClusterStaysPending(t *testing.T) {
	store := NewPathwayStore(100)
	gen := newTestGenerator(store, 100)

	trackAll(t, gen,
		"write a sorting function in python",
		"write sorting function for numbers",
	)

	if created := gen.GeneratePass(); created != 0 {
		t.Fatalf("Cluster of 2 must not create a pathway, created %d", created)
	}
	if gen.PendingCount() != 2 {
		t.Errorf("Undersized cluster should stay pending, got %d", gen.PendingCount())
	}
	if len(store.All()) != 0 {
		t.Errorf("Store should be empty, has %d pathways", len(store.All()))
	}
}

func TestGenerator_MixedBufferLeavesOutliersPending(t *testing.T) {
	store := NewPathwayStore(100)
	gen := newTestGenerator(store, 100)

	trackAll(t, gen,
		"write a sorting function in python",
		"best pizza toppings for a birthday",
		"write sorting function for numbers",
		"how do i write a sorting function",
	)

	if created := gen.GeneratePass(); created != 1 {
		t.Fatalf("Expected 1 pathway from the sorting cluster, got %d", created)
	}
	if gen.PendingCount() != 1 {
		t.Errorf("The unrelated query should remain pending, got %d", gen.PendingCount())
	}
}

func TestGenerator_Idempotent(t *testing.T) {
	store := NewPathwayStore(100)
	gen := newTestGenerator(store, 100)

	queries := []string{
		"write a sorting function in python",
		"write sorting function for numbers",
		"how do i write a sorting function",
	}

	trackAll(t, gen, queries...)
	if created := gen.GeneratePass(); created != 1 {
		t.Fatalf("First pass should create 1 pathway, got %d", created)
	}

	// Same cluster again: the trigger hash collides with the existing id.
	trackAll(t, gen, queries...)
	if created := gen.GeneratePass(); created != 0 {
		t.Fatalf("Second pass must be idempotent, created %d", created)
	}
	if len(store.All()) != 1 {
		t.Errorf("Expected exactly 1 pathway after both passes, got %d", len(store.All()))
	}
	if gen.PendingCount() != 0 {
		t.Errorf("Colliding cluster is still consumed, got %d pending", gen.PendingCount())
	}
}

func TestGenerator_AutoPassOnThreshold(t *testing.T) {
	store := NewPathwayStore(100)
	gen := newTestGenerator(store, 3)

	// The third Track crosses the threshold and runs the pass inline.
	trackAll(t, gen,
		"write a sorting function in python",
		"write sorting function for numbers",
		"how do i write a sorting function",
	)

	if len(store.All()) != 1 {
		t.Fatalf("Expected threshold-triggered generation, store has %d pathways", len(store.All()))
	}
	if gen.GeneratedCount() != 1 {
		t.Errorf("Expected generated count 1, got %d", gen.GeneratedCount())
	}
}

func TestGenerator_UnembeddableQueriesDropped(t *testing.T) {
	store := NewPathwayStore(100)
	gen := newTestGenerator(store, 100)

	gen.Track(context.Background(), "query with no embedding", "answer")
	if gen.PendingCount() != 0 {
		t.Errorf("Unembeddable query must not be buffered, got %d", gen.PendingCount())
	}
}

func TestGenerator_BufferBounded(t *testing.T) {
	vectors := make(map[string][]float32)
	queries := make([]string, 0, 8)
	for i := 0; i < 8; i++ {
		q := fmt.Sprintf("distinct topic number %d", i)
		v := make([]float32, 8)
		v[i] = 1
		vectors[q] = v
		queries = append(queries, q)
	}

	store := NewPathwayStore(100)
	gen := NewPathwayGeneratorService(store, &stubEmbedder{vectors: vectors}, GeneratorConfig{
		BufferCapacity: 5,
		Threshold:      100,
		MinSimilarity:  0.8,
		MinClusterSize: 3,
	})

	for _, q := range queries {
		gen.Track(context.Background(), q, "answer")
	}
	if gen.PendingCount() != 5 {
		t.Errorf("Buffer should drop oldest beyond capacity 5, got %d", gen.PendingCount())
	}
}
