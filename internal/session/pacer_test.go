package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPacer_PushPop(t *testing.T) {
	p := newPacer(time.Hour)
	now := time.Now()

	require.Nil(t, p.C())
	require.True(t, p.push("one", now))
	require.False(t, p.push("two", now.Add(time.Minute)))
	require.NotNil(t, p.C())
	require.Equal(t, 2, p.pending())

	require.Empty(t, p.pop(now.Add(30*time.Minute)))
	require.Equal(t, []string{"one"}, p.pop(now.Add(time.Hour)))
	require.Equal(t, []string{"two"}, p.pop(now.Add(2*time.Hour)))
	require.Zero(t, p.pending())
	require.Nil(t, p.C())
	p.stop()
}

func TestPacer_Fires(t *testing.T) {
	p := newPacer(10 * time.Millisecond)
	p.push("hello", time.Now())

	select {
	case <-p.C():
	case <-time.After(time.Second):
		t.Fatal("pacer timer did not fire")
	}
	require.Equal(t, []string{"hello"}, p.pop(time.Now()))
}

func TestPacer_Stop(t *testing.T) {
	p := newPacer(10 * time.Millisecond)
	now := time.Now()
	p.push("a", now)
	p.push("b", now)

	require.Equal(t, 2, p.stop())
	require.Zero(t, p.pending())
	require.Nil(t, p.C())
	require.Zero(t, newPacer(time.Second).stop())
}
