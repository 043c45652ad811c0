package home

import (
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/jukebox/sys"
)

func handleAutoplayDisable(event *events.ApplicationCommandInteractionCreate, _ discord.SlashCommandInteractionData) {
	a, ok := autoplays.Get(*event.GuildID())
	if !ok {
		replyEphemeral(event, sys.ErrAutoplayNoSession)
		return
	}
	a.Disable()

	_ = event.CreateMessage(discord.NewMessageCreateBuilder().
		SetContent(sys.MsgAutoplayStatusDisabled).
		Build())
}
