package event_handler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"revent/src-server/mutate"
	"revent/src-server/utils"

	"github.com/bwmarrin/discordgo"
)

func restore(as *utils.AppState, cmdInfo *[]*discordgo.ApplicationCommandOption, cmdHandler map[string]func(s *discordgo.Session, i *discordgo.InteractionCreate) error) {
	id := "restore"
	*cmdInfo = append(*cmdInfo, &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionSubCommand,
		Name:        id,
		Description: "Undo a single-occurrence edit or deletion, restoring the series default.",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "event-id",
				Description: "ID of the repeating event.",
				Required:    true,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "occurrence",
				Description: "The occurrence date to restore.",
				Required:    true,
			},
		},
	})
	cmdHandler[id] = restoreHandler(as)
}

func restoreHandler(as *utils.AppState) func(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	return func(s *discordgo.Session, i *discordgo.InteractionCreate) error {
		interaction := i.Interaction

		// respond to original request
		if err := s.InteractionRespond(interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		}); err != nil {
			slog.Warn("can't respond", "handler", "event-restore", "content", "deferring", "error", err)
			return nil
		}

		op, err := func() (*mutate.DeleteException, error) {
			options := optionMap(i)
			var eventID string
			if opt, ok := options["event-id"]; ok {
				eventID = strings.TrimSpace(opt.StringValue())
			}
			if eventID == "" {
				return nil, fmt.Errorf("event ID is empty")
			}
			ev, err := as.Store.GetEvent(context.Background(), eventID)
			if err != nil {
				return nil, err
			}
			base, err := as.Store.SeriesBase(context.Background(), ev)
			if err != nil {
				return nil, err
			}
			if base.Recurrence == "" {
				return nil, fmt.Errorf("event doesn't repeat")
			}

			opt, ok := options["occurrence"]
			if !ok {
				return nil, fmt.Errorf("occurrence date is empty")
			}
			date, err := utils.ParseDateText(as.When, opt.StringValue(), as.Config.GetLocation())
			if err != nil {
				return nil, fmt.Errorf("can't parse occurrence date: %w", err)
			}

			// match against the exception rows directly; the expanded
			// view hides tombstoned dates, which are exactly the ones
			// worth restoring
			exceptions, err := as.Store.Exceptions(context.Background(), base.SeriesID())
			if err != nil {
				return nil, err
			}
			dayStart := date.In(as.Config.GetLocation()).Truncate(24 * time.Hour).Unix()
			for _, exception := range exceptions {
				if exception.RecurrenceDateUnixUTC >= dayStart &&
					exception.RecurrenceDateUnixUTC < dayStart+24*60*60 {
					return &mutate.DeleteException{
						SeriesID:    base.SeriesID(),
						DateUnixUTC: exception.RecurrenceDateUnixUTC,
					}, nil
				}
			}
			return nil, fmt.Errorf("that occurrence was never modified")
		}()
		if err != nil {
			// edit the deferred message
			msg := fmt.Sprintf("Can't restore occurrence: %s", err.Error())
			if _, err := s.InteractionResponseEdit(interaction, &discordgo.WebhookEdit{
				Content: &msg,
			}); err != nil {
				slog.Warn("can't respond", "handler", "event-restore", "content", "restore-error", "error", err)
			}
			return nil
		}

		if err := as.Store.ApplySync(context.Background(), []mutate.Operation{*op}); err != nil {
			// edit the deferred message
			msg := fmt.Sprintf("Can't restore occurrence\n```%s```", err.Error())
			if _, err := s.InteractionResponseEdit(interaction, &discordgo.WebhookEdit{
				Content: &msg,
			}); err != nil {
				slog.Warn("can't respond", "handler", "event-restore", "content", "apply-error", "error", err)
			}
			return fmt.Errorf("event_handler:restore: %w", err)
		}

		// edit the deferred message
		msg := "Occurrence restored to the series schedule."
		if _, err := s.InteractionResponseEdit(interaction, &discordgo.WebhookEdit{
			Content: &msg,
		}); err != nil {
			slog.Warn("can't respond", "handler", "event-restore", "content", "restored", "error", err)
		}
		return nil
	}
}
