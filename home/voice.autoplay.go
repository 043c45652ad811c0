package home

import (
	"github.com/disgoorg/disgo/events"
)

// applyAutoplayOption handles the autoplay flag of /voice play. The caller is
// the session owner when autoplay gets switched on.
func applyAutoplayOption(event *events.ApplicationCommandInteractionCreate, enabled bool) {
	if autoplays == nil || event.GuildID() == nil {
		return
	}
	a := autoplays.GetOrCreate(*event.GuildID())
	if enabled {
		a.Enable(event.User().ID)
		return
	}
	a.Disable()
}
