package event_handler

import (
	"context"
	"fmt"
	"log/slog"

	"revent/src-server/model"
	"revent/src-server/utils"

	"github.com/bwmarrin/discordgo"
)

// Init injects one "event" slash command with multiple subcommands
// into appCmdInfo and appCmdHandler in AppState.
func Init(as *utils.AppState) {
	localCmdInfo := make(
		[]*discordgo.ApplicationCommandOption, 0,
	)
	localCmdHandler := make(
		map[string]func(s *discordgo.Session, i *discordgo.InteractionCreate) error,
	)

	// injecting info and handler into 2 local maps
	create(as, &localCmdInfo, localCmdHandler)
	modify(as, &localCmdInfo, localCmdHandler)
	deleteCmd(as, &localCmdInfo, localCmdHandler)
	restore(as, &localCmdInfo, localCmdHandler)
	list(as, &localCmdInfo, localCmdHandler)

	id := "event"
	as.AddAppCmdInfo(id, &discordgo.ApplicationCommand{
		Name:        id,
		Description: "Event management commands.",
		Options:     localCmdInfo,
	})
	as.AddAppCmdHandler(id, func(s *discordgo.Session, i *discordgo.InteractionCreate) error {
		data := i.ApplicationCommandData()
		if handler, ok := localCmdHandler[data.Options[0].Name]; ok {
			return handler(s, i)
		}
		return nil
	})
}

// ensureCalendarExists creates the channel's calendar row on first
// touch so event upserts always have a home.
func ensureCalendarExists(as *utils.AppState, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	exists, err := as.BunDB.
		NewSelect().
		Model((*model.Calendar)(nil)).
		Where("channel_id = ?", i.ChannelID).
		Exists(context.Background())
	switch {
	case err != nil:
		return fmt.Errorf("ensureCalendarExists: can't check if calendar exists: %w", err)
	case !exists:
		name := i.ChannelID
		if channel, err := s.Channel(i.ChannelID); err == nil {
			name = channel.Name
		}
		calendarModel := model.Calendar{
			ChannelID: i.ChannelID,
			Name:      name,
		}
		if _, err := as.BunDB.NewInsert().
			Model(&calendarModel).
			Exec(context.Background()); err != nil {
			return fmt.Errorf("ensureCalendarExists: can't create calendar: %w", err)
		}
		slog.Debug("calendar created for channel", "channel", i.ChannelID, "name", name)
	}
	return nil
}

// optionMap flattens a subcommand's options for lookup by name.
func optionMap(i *discordgo.InteractionCreate) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	options := i.ApplicationCommandData().Options[0].Options
	out := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(options))
	for _, opt := range options {
		out[opt.Name] = opt
	}
	return out
}
