package home

import (
	"strconv"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/omit"
	"github.com/leeineian/jukebox/proc"
	"github.com/leeineian/jukebox/sys"
)

func init() {
	adminPerm := discord.PermissionAdministrator

	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:                     "presence",
		Description:              "Toggle the now-playing presence rotation (Admin Only)",
		DefaultMemberPermissions: omit.New(&adminPerm),
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
		},
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionBool{
				Name:        "visible",
				Description: "Show playback stats in the bot's presence",
				Required:    true,
			},
		},
	}, handlePresence)
}

func handlePresence(event *events.ApplicationCommandInteractionCreate) {
	visible := event.SlashCommandInteractionData().Bool("visible")

	if err := sys.SetBotConfig(sys.AppContext, proc.PresenceConfigKey, strconv.FormatBool(visible)); err != nil {
		sys.LogWarn(sys.MsgPresenceReplySaveFail, err)
		replyEphemeral(event, sys.ErrGenericFailure)
		return
	}

	content := sys.MsgPresenceReplyHidden
	if visible {
		content = sys.MsgPresenceReplyVisible
	}

	err := event.CreateMessage(discord.NewMessageCreateBuilder().
		SetIsComponentsV2(true).
		AddComponents(
			discord.NewContainer(
				discord.NewTextDisplay(content),
			),
		).
		SetEphemeral(true).
		Build())
	if err != nil {
		sys.LogDebug(sys.MsgGenericError, err)
	}
}
