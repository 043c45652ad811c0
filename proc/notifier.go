package proc

import (
	"context"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/jukebox/sys"
)

// ChannelNotifier posts to the text channel the guild's player was started from.
type ChannelNotifier struct {
	voice *VoiceSystem
}

func NewChannelNotifier(vs *VoiceSystem) *ChannelNotifier {
	return &ChannelNotifier{voice: vs}
}

func (n *ChannelNotifier) NotifyGuild(ctx context.Context, guildID snowflake.ID, message string) {
	s := n.voice.GetSession(guildID)
	if s == nil || s.client == nil {
		return
	}
	s.channelMu.RLock()
	channelID := s.TextChannelID
	s.channelMu.RUnlock()
	if channelID == 0 {
		return
	}

	_, err := s.client.Rest.CreateMessage(channelID, discord.NewMessageCreateBuilder().
		SetContent(message).
		Build(), rest.WithCtx(ctx))
	if err != nil {
		sys.LogVoice(sys.MsgVoiceNotifyFail, guildID.String(), err)
	}
}
