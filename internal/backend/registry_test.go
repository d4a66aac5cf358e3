package backend

import (
	"context"
	"sync"
	"testing"

	"github.com/storyloom/storyloom-orchestrator/internal/domain"
)

func noopInvoke(ctx context.Context, req *domain.GenerationRequest) (*domain.Artifact, error) {
	return &domain.Artifact{Kind: req.Kind, Text: "ok"}, nil
}

func desc(id string, kind domain.Kind, tier domain.Tier) *Descriptor {
	return &Descriptor{ID: id, Kind: kind, Tier: tier, Invoke: noopInvoke}
}

func TestNewRegistry_Validation(t *testing.T) {
	tests := []struct {
		name    string
		descs   []*Descriptor
		wantErr bool
	}{
		{
			name:  "valid",
			descs: []*Descriptor{desc("a", domain.KindText, domain.TierLocalCPU)},
		},
		{
			name:    "missing id",
			descs:   []*Descriptor{desc("", domain.KindText, domain.TierLocalCPU)},
			wantErr: true,
		},
		{
			name:    "invalid kind",
			descs:   []*Descriptor{desc("a", domain.Kind("video"), domain.TierLocalCPU)},
			wantErr: true,
		},
		{
			name:    "invalid tier",
			descs:   []*Descriptor{desc("a", domain.KindText, domain.Tier("fast"))},
			wantErr: true,
		},
		{
			name: "duplicate id",
			descs: []*Descriptor{
				desc("a", domain.KindText, domain.TierLocalCPU),
				desc("a", domain.KindAudio, domain.TierCloud),
			},
			wantErr: true,
		},
		{
			name:    "missing invoke",
			descs:   []*Descriptor{{ID: "a", Kind: domain.KindText, Tier: domain.TierLocalCPU}},
			wantErr: true,
		},
		{
			name: "negative retries",
			descs: []*Descriptor{{
				ID: "a", Kind: domain.KindText, Tier: domain.TierLocalCPU,
				Invoke: noopInvoke, MaxInvalidRetries: -1,
			}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.descs...)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewRegistry() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRegistry_RegistrationOrderPreserved(t *testing.T) {
	reg, err := NewRegistry(
		desc("text-a", domain.KindText, domain.TierLocalCPU),
		desc("audio-a", domain.KindAudio, domain.TierCloud),
		desc("text-b", domain.KindText, domain.TierLocalCPU),
	)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	texts := reg.ForKind(domain.KindText)
	if len(texts) != 2 || texts[0].ID != "text-a" || texts[1].ID != "text-b" {
		t.Errorf("ForKind(text) order = %v", ids(texts))
	}

	if _, ok := reg.Lookup("audio-a"); !ok {
		t.Error("Lookup(audio-a) not found")
	}
	if _, ok := reg.Lookup("nope"); ok {
		t.Error("Lookup(nope) unexpectedly found")
	}
	if got := len(reg.Descriptors()); got != 3 {
		t.Errorf("Descriptors() len = %d, want 3", got)
	}
}

func TestRegistry_ReloadSwapsAtomically(t *testing.T) {
	reg, err := NewRegistry(desc("a", domain.KindText, domain.TierLocalCPU))
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	// A failed reload must leave the old snapshot intact.
	if err := reg.Reload(desc("", domain.KindText, domain.TierLocalCPU)); err == nil {
		t.Fatal("Reload() with invalid descriptor did not error")
	}
	if _, ok := reg.Lookup("a"); !ok {
		t.Error("failed reload clobbered the current snapshot")
	}

	// Concurrent readers must always observe a complete snapshot: exactly
	// one text descriptor, under either the old or the new id.
	var wg sync.WaitGroup
	stop := make(chan struct{})
	for n := 0; n < 4; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				got := reg.ForKind(domain.KindText)
				if len(got) != 1 {
					t.Errorf("ForKind(text) len = %d mid-reload", len(got))
					return
				}
			}
		}()
	}

	for n := 0; n < 100; n++ {
		if err := reg.Reload(desc("b", domain.KindText, domain.TierLocalCPU)); err != nil {
			t.Fatalf("Reload() error = %v", err)
		}
		if err := reg.Reload(desc("a", domain.KindText, domain.TierLocalCPU)); err != nil {
			t.Fatalf("Reload() error = %v", err)
		}
	}
	close(stop)
	wg.Wait()
}

func ids(descs []*Descriptor) []string {
	out := make([]string, len(descs))
	for i, d := range descs {
		out[i] = d.ID
	}
	return out
}
