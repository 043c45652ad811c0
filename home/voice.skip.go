package home

import (
	"fmt"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/jukebox/proc"
	"github.com/leeineian/jukebox/sys"
)

func handleMusicSkip(event *events.ApplicationCommandInteractionCreate, _ discord.SlashCommandInteractionData) {
	s := proc.GetVoiceManager().GetSession(*event.GuildID())
	if s == nil {
		replyEphemeral(event, sys.ErrVoiceNothingPlaying)
		return
	}
	cur, ok := s.Current()
	if !ok || !s.Skip() {
		replyEphemeral(event, sys.ErrVoiceNothingPlaying)
		return
	}

	_ = event.CreateMessage(discord.NewMessageCreateBuilder().
		SetContent(fmt.Sprintf(sys.MsgVoiceReplySkipped, cur.Title)).
		Build())
}
