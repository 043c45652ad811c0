package home

import (
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/jukebox/sys"
)

func handleAutoplayEnable(event *events.ApplicationCommandInteractionCreate, _ discord.SlashCommandInteractionData) {
	guildID := event.GuildID()
	if guildID == nil {
		return
	}
	voiceState, ok := event.Client().Caches.VoiceState(*guildID, event.User().ID)
	if !ok || voiceState.ChannelID == nil {
		replyEphemeral(event, sys.ErrAutoplayNotInVoice)
		return
	}

	autoplays.GetOrCreate(*guildID).Enable(event.User().ID)

	_ = event.CreateMessage(discord.NewMessageCreateBuilder().
		SetContent(sys.MsgAutoplayStatusEnabled).
		Build())
}
