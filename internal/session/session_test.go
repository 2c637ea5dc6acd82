package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/patientsim/internal/model"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClockedStore() (*MemoryStore, *fakeClock) {
	clk := &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	return NewMemoryStore().WithClock(clk.Now), clk
}

func TestKey(t *testing.T) {
	key := Key("ms-esposito", "abc-123")
	assert.Equal(t, "case:ms-esposito:session:abc-123", key)

	caseID, sessionID, ok := ParseKey(key)
	require.True(t, ok)
	assert.Equal(t, "ms-esposito", caseID)
	assert.Equal(t, "abc-123", sessionID)

	for _, bad := range []string{"", "session:x", "case:x", "case:x:y"} {
		_, _, ok := ParseKey(bad)
		assert.False(t, ok, "ParseKey(%q)", bad)
	}
}

func TestNextMode(t *testing.T) {
	tests := []struct {
		text    string
		current model.Mode
		want    model.Mode
	}{
		{"done", model.ModePatient, model.ModeTutor},
		{"  DONE ", model.ModeCE, model.ModeTutor},
		{"I'm done with questions", model.ModePatient, model.ModePatient},
		{"CE help", model.ModePatient, model.ModeCE},
		{"pause and explain", model.ModePatient, model.ModeCE},
		{"Summarize", model.ModePatient, model.ModeCE},
		{"Continue as patient", model.ModeCE, model.ModeCE},
		{"Where does it hurt?", model.ModeCE, model.ModeCE},
		{"Where does it hurt?", model.ModePatient, model.ModePatient},
		{"Any fever?", model.ModeTutor, model.ModeTutor},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, NextMode(tt.text, tt.current))
		})
	}
}

func TestMemoryStoreGetSet(t *testing.T) {
	ctx := context.Background()
	s, _ := newClockedStore()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	data := model.SessionData{
		Mode:   model.ModePatient,
		Opened: true,
		Turns:  []model.Turn{{Role: model.RoleUser, Content: "hello", Timestamp: 1}},
	}
	require.NoError(t, s.Set(ctx, "k", data, time.Hour))

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	// Returned turns are a copy.
	got.Turns[0].Content = "mutated"
	again, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "hello", again.Turns[0].Content)
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	s, clk := newClockedStore()

	require.NoError(t, s.Set(ctx, "k", model.SessionData{Mode: model.ModeCE}, time.Hour))

	clk.Advance(59 * time.Minute)
	_, err := s.Get(ctx, "k")
	require.NoError(t, err)

	require.NoError(t, s.Expire(ctx, "k", time.Hour))
	clk.Advance(59 * time.Minute)
	_, err = s.Get(ctx, "k")
	require.NoError(t, err, "Expire should extend the deadline")

	clk.Advance(time.Minute)
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.Expire(ctx, "k", time.Hour), ErrNotFound)
}

func TestLoadSave(t *testing.T) {
	ctx := context.Background()
	s, clk := newClockedStore()

	fresh, err := Load(ctx, s, "c", "s1")
	require.NoError(t, err)
	assert.Equal(t, model.SessionData{Mode: model.ModePatient}, fresh)

	fresh.Opened = true
	fresh.Turns = append(fresh.Turns, model.Turn{Role: model.RoleUser, Content: "hi"})
	require.NoError(t, Save(ctx, s, "c", "s1", fresh, 0))

	loaded, err := Load(ctx, s, "c", "s1")
	require.NoError(t, err)
	assert.True(t, loaded.Opened)
	assert.Len(t, loaded.Turns, 1)

	// A zero TTL falls back to DefaultTTL.
	clk.Advance(DefaultTTL - time.Second)
	_, err = s.Get(ctx, Key("c", "s1"))
	require.NoError(t, err)
	clk.Advance(time.Second)
	_, err = s.Get(ctx, Key("c", "s1"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreConcurrent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := Key("c", string(rune('a'+i)))
			for j := range 50 {
				data := model.SessionData{Mode: model.ModePatient, Turns: make([]model.Turn, j)}
				assert.NoError(t, s.Set(ctx, key, data, time.Minute))
				_, err := s.Get(ctx, key)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
}
