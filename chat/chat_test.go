package chat

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MinnDevelopment/strumbot/notify"
)

type fakeSayer struct {
	channels []string
	lines    []string
}

func (f *fakeSayer) Say(channel, text string) {
	f.channels = append(f.channels, channel)
	f.lines = append(f.lines, text)
}

func TestAnnouncer_Send(t *testing.T) {
	client := &fakeSayer{}
	a := newAnnouncer(client, "#MyChannel", notify.EventSet{notify.EventLive: {}})

	require.NoError(t, a.Send(context.Background(), notify.Notification{Event: notify.EventLive, Summary: "alice is live\nwith Chess"}))
	require.NoError(t, a.Send(context.Background(), notify.Notification{Event: notify.EventVOD, Summary: "alice was live"}))
	require.NoError(t, a.Send(context.Background(), notify.Notification{Event: notify.EventLive}))

	assert.Equal(t, []string{"mychannel"}, client.channels)
	assert.Equal(t, []string{"alice is live with Chess"}, client.lines)
}

func TestAnnouncer_TruncatesLongSummary(t *testing.T) {
	client := &fakeSayer{}
	a := newAnnouncer(client, "c", notify.AllEvents())

	require.NoError(t, a.Send(context.Background(), notify.Notification{Event: notify.EventUpdate, Summary: strings.Repeat("x", 600)}))
	require.Len(t, client.lines, 1)
	assert.Len(t, []rune(client.lines[0]), messageLimit)
}

func TestNewAnnouncer_MissingCredentials(t *testing.T) {
	assert.Nil(t, NewAnnouncer("", "token", "c", notify.AllEvents()))
	assert.Nil(t, NewAnnouncer("bot", "", "c", notify.AllEvents()))
	assert.Nil(t, NewAnnouncer("bot", "token", "", notify.AllEvents()))
	assert.NotNil(t, NewAnnouncer("bot", "token", "c", notify.AllEvents()))
}
