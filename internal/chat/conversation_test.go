package chat_test

import (
	"sync"
	"testing"

	"github.com/omochice/socketio-chat/internal/chat"
	"github.com/stretchr/testify/require"
)

func TestConversation_Append(t *testing.T) {
	conv := chat.NewConversation()

	user, err := conv.Append("hi", true)
	require.NoError(t, err)
	bot, err := conv.Append("hello", false)
	require.NoError(t, err)

	require.NotEmpty(t, user.ID)
	require.NotEqual(t, user.ID, bot.ID)
	require.False(t, user.CreatedAt.IsZero())

	entries := conv.Entries()
	require.Len(t, entries, 2)
	require.Equal(t, "hi", entries[0].Text)
	require.True(t, entries[0].IsUser)
	require.Equal(t, "hello", entries[1].Text)
	require.False(t, entries[1].IsUser)
}

func TestConversation_Append_KeepsTextVerbatim(t *testing.T) {
	conv := chat.NewConversation()

	for _, text := range []string{"", "   ", "  padded  "} {
		entry, err := conv.Append(text, false)
		require.NoError(t, err)
		require.Equal(t, text, entry.Text)
	}
	require.Equal(t, 3, conv.Len())
}

func TestConversation_Entries_ReturnsCopy(t *testing.T) {
	conv := chat.NewConversation()
	_, err := conv.Append("original", true)
	require.NoError(t, err)

	entries := conv.Entries()
	entries[0].Text = "changed"

	require.Equal(t, "original", conv.Entries()[0].Text)
}

func TestConversation_Seal(t *testing.T) {
	conv := chat.NewConversation()
	_, err := conv.Append("before", true)
	require.NoError(t, err)

	conv.Seal()
	require.True(t, conv.Sealed())

	_, err = conv.Append("after", false)
	require.ErrorIs(t, err, chat.ErrConversationClosed)
	require.Equal(t, 1, conv.Len())
	require.Equal(t, "before", conv.Entries()[0].Text)
}

func TestConversation_UniqueIDs(t *testing.T) {
	conv := chat.NewConversation()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = conv.Append("x", i%2 == 0)
		}()
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, e := range conv.Entries() {
		require.False(t, seen[e.ID], "duplicate id %s", e.ID)
		seen[e.ID] = true
	}
	require.Len(t, seen, 50)
}
