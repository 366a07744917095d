package event_handler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"revent/src-server/utils"

	"github.com/bwmarrin/discordgo"
)

// Discord caps embeds per message.
const maxListEmbeds = 10

func list(as *utils.AppState, cmdInfo *[]*discordgo.ApplicationCommandOption, cmdHandler map[string]func(s *discordgo.Session, i *discordgo.InteractionCreate) error) {
	id := "list"
	*cmdInfo = append(*cmdInfo, &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionSubCommand,
		Name:        id,
		Description: "List upcoming events, repeating ones expanded.",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "days",
				Description: "How many days ahead to look. Defaults to 7.",
				Required:    false,
			},
		},
	})
	cmdHandler[id] = listHandler(as)
}

func listHandler(as *utils.AppState) func(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	return func(s *discordgo.Session, i *discordgo.InteractionCreate) error {
		if err := ensureCalendarExists(as, s, i); err != nil {
			return fmt.Errorf("event_handler:list: can't ensure calendar exists: %w", err)
		}

		// respond to original request
		if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		}); err != nil {
			slog.Warn("can't respond", "handler", "event-list", "content", "deferring", "error", err)
			return nil
		}

		days := 7
		if opt, ok := optionMap(i)["days"]; ok {
			if n := int(opt.IntValue()); n > 0 {
				days = n
			}
		}

		windowStart := time.Now().In(as.Config.GetLocation())
		windowEnd := windowStart.AddDate(0, 0, days)
		occurrences, err := as.Store.OccurrencesInWindow(
			context.Background(), i.ChannelID, windowStart, windowEnd,
		)
		if err != nil {
			// edit the deferred message
			msg := fmt.Sprintf("Can't list events\n```%s```", err.Error())
			if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
				Content: &msg,
			}); err != nil {
				slog.Warn("can't respond", "handler", "event-list", "content", "list-error", "error", err)
			}
			return fmt.Errorf("event_handler:list: %w", err)
		}

		if len(occurrences) == 0 {
			msg := fmt.Sprintf("No events in the next %d days.", days)
			if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
				Content: &msg,
			}); err != nil {
				slog.Warn("can't respond", "handler", "event-list", "content", "empty", "error", err)
			}
			return nil
		}

		embeds := make([]*discordgo.MessageEmbed, 0, maxListEmbeds)
		for _, occurrence := range occurrences {
			if len(embeds) == maxListEmbeds {
				break
			}
			embeds = append(embeds, eventEmbed(occurrence))
		}
		msg := fmt.Sprintf("%d events in the next %d days.", len(occurrences), days)
		if len(occurrences) > maxListEmbeds {
			msg += fmt.Sprintf(" Showing the first %d.", maxListEmbeds)
		}
		if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
			Content: &msg,
			Embeds:  &embeds,
		}); err != nil {
			slog.Warn("can't respond", "handler", "event-list", "content", "listed", "error", err)
		}
		return nil
	}
}
