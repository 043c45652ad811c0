package home

import (
	"sync"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/omit"
	"github.com/leeineian/jukebox/sys"
	"github.com/sho0pi/naturaltime"
)

var (
	pruneParser   *naturaltime.Parser
	pruneParserMu sync.Mutex
)

func init() {
	adminPerm := discord.PermissionAdministrator

	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:        "autoplay",
		Description: "Keep the queue going with recommendations",
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
		},
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionSubCommand{
				Name:        "enable",
				Description: "Turn autoplay on, seeded by your listening history",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "disable",
				Description: "Turn autoplay off",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "status",
				Description: "Show whether autoplay is working",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "clear",
				Description: "Forget which tracks autoplay already played",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "prune",
				Description: "Forget tracks played before a point in time",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:        "older_than",
						Description: "e.g. '2 hours ago', 'yesterday' or '30m'",
						Required:    true,
					},
				},
			},
		},
	}, func(event *events.ApplicationCommandInteractionCreate) {
		data := event.SlashCommandInteractionData()
		if data.SubCommandName == nil || autoplays == nil {
			return
		}

		switch *data.SubCommandName {
		case "enable":
			handleAutoplayEnable(event, data)
		case "disable":
			handleAutoplayDisable(event, data)
		case "status":
			handleAutoplayStatus(event, data)
		case "clear":
			handleAutoplayClear(event, data)
		case "prune":
			handleAutoplayPrune(event, data)
		}
	})

	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:                     "autoplay-admin",
		Description:              "Autoplay maintenance (Bot Owner Only)",
		DefaultMemberPermissions: omit.New(&adminPerm),
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
		},
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionSubCommand{
				Name:        "cleanup",
				Description: "Prune every server's history past the retention window",
			},
		},
	}, handleAutoplayAdmin)
}

func initPruneParser() error {
	pruneParserMu.Lock()
	defer pruneParserMu.Unlock()
	if pruneParser != nil {
		return nil
	}
	p, err := naturaltime.New()
	if err != nil {
		return err
	}
	pruneParser = p
	return nil
}
