package home

import (
	"fmt"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/jukebox/sys"
)

func handleAutoplayClear(event *events.ApplicationCommandInteractionCreate, _ discord.SlashCommandInteractionData) {
	if !canManageHistory(event) {
		replyEphemeral(event, sys.ErrAutoplayManageGuild)
		return
	}
	a, ok := autoplays.Get(*event.GuildID())
	if !ok {
		replyEphemeral(event, sys.ErrAutoplayNoSession)
		return
	}

	n := a.ClearHistory()
	_ = event.CreateMessage(discord.NewMessageCreateBuilder().
		SetContent(fmt.Sprintf(sys.MsgAutoplayHistoryCleared, n)).
		Build())
}

func canManageHistory(event *events.ApplicationCommandInteractionCreate) bool {
	m := event.Member()
	return m != nil && m.Permissions.Has(discord.PermissionManageGuild)
}
