package home

import (
	"context"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/jukebox/proc"
	"github.com/leeineian/jukebox/sys"
)

// handleMusicStop leaves the channel, which also tears down the guild's autoplay session.
func handleMusicStop(event *events.ApplicationCommandInteractionCreate, _ discord.SlashCommandInteractionData) {
	proc.GetVoiceManager().Leave(context.Background(), *event.GuildID())

	_ = event.CreateMessage(discord.NewMessageCreateBuilder().
		SetContent(sys.MsgVoiceReplyStopped).
		Build())
}
