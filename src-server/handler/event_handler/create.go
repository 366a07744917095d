package event_handler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"revent/src-server/event"
	"revent/src-server/mutate"
	"revent/src-server/recur"
	"revent/src-server/utils"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
)

func create(as *utils.AppState, cmdInfo *[]*discordgo.ApplicationCommandOption, cmdHandler map[string]func(s *discordgo.Session, i *discordgo.InteractionCreate) error) {
	id := "create"
	*cmdInfo = append(*cmdInfo, &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionSubCommand,
		Name:        id,
		Description: "Create a new event.",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "title",
				Description: "The title of the event.",
				Required:    true,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "start",
				Description: "The start date of the event.",
				Required:    true,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "end",
				Description: "The end date of the event.",
				Required:    false,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "description",
				Description: "Describe the event in detail.",
				Required:    false,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "location",
				Description: "The location of the event.",
				Required:    false,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "category",
				Description: "The category of the event.",
				Required:    false,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "recurrence",
				Description: "Recurrence rule, e.g. FREQ=WEEKLY;BYDAY=MO,WE.",
				Required:    false,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "reminders",
				Description: "Reminder offsets in minutes before start, separated by commas.",
				Required:    false,
			},
		},
	})
	cmdHandler[id] = createHandler(as)
}

func createHandler(as *utils.AppState) func(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	return func(s *discordgo.Session, i *discordgo.InteractionCreate) error {
		if err := ensureCalendarExists(as, s, i); err != nil {
			return fmt.Errorf("event_handler:create: can't ensure calendar exists: %w", err)
		}

		// respond to original request
		if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		}); err != nil {
			slog.Warn("can't respond", "handler", "event-create", "content", "deferring", "error", err)
			return nil
		}

		newEvent, err := func() (*event.Event, error) {
			now := time.Now().UTC().Unix()
			newEvent := &event.Event{
				ID:               uuid.NewString(),
				CalendarID:       i.ChannelID,
				IsRecurrenceBase: false,
				CreatedAt:        now,
				UpdatedAt:        now,
			}

			options := optionMap(i)
			if opt, ok := options["title"]; ok {
				newEvent.Title = utils.CleanupString(opt.StringValue())
			}
			if newEvent.Title == "" {
				return nil, fmt.Errorf("title is empty")
			}
			if opt, ok := options["description"]; ok {
				newEvent.Description = opt.StringValue()
			}
			if opt, ok := options["location"]; ok {
				newEvent.Location = utils.CleanupString(opt.StringValue())
			}
			if opt, ok := options["category"]; ok {
				newEvent.Category = utils.CleanupString(opt.StringValue())
			}

			if opt, ok := options["start"]; ok {
				start, err := utils.ParseDateText(as.When, opt.StringValue(), as.Config.GetLocation())
				if err != nil {
					return nil, fmt.Errorf("can't parse start date: %w", err)
				}
				newEvent.StartUnixUTC = start.UTC().Unix()
			}
			newEvent.EndUnixUTC = newEvent.StartUnixUTC + int64(time.Hour/time.Second)
			if opt, ok := options["end"]; ok {
				end, err := utils.ParseDateText(as.When, opt.StringValue(), as.Config.GetLocation())
				if err != nil {
					return nil, fmt.Errorf("can't parse end date: %w", err)
				}
				newEvent.EndUnixUTC = end.UTC().Unix()
			}
			if newEvent.EndUnixUTC <= newEvent.StartUnixUTC {
				return nil, fmt.Errorf("event ends before it starts")
			}

			if opt, ok := options["recurrence"]; ok {
				raw := strings.TrimSpace(opt.StringValue())
				if raw != "" && !strings.EqualFold(raw, "none") {
					if _, err := recur.Parse(raw); err != nil {
						return nil, fmt.Errorf("can't parse recurrence rule: %w", err)
					}
					newEvent.Recurrence = raw
					newEvent.RecurrenceGroupID = newEvent.ID
					newEvent.IsRecurrenceBase = true
				}
			}

			if opt, ok := options["reminders"]; ok {
				for _, piece := range strings.Split(opt.StringValue(), ",") {
					var minutes int64
					if _, err := fmt.Sscanf(strings.TrimSpace(piece), "%d", &minutes); err != nil {
						return nil, fmt.Errorf("can't parse reminder %q", piece)
					}
					newEvent.Reminders = append(newEvent.Reminders, minutes*60)
				}
			}

			return newEvent, nil
		}()
		if err != nil {
			// edit the deferred message
			msg := fmt.Sprintf("Can't create event: %s", err.Error())
			if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
				Content: &msg,
			}); err != nil {
				slog.Warn("can't respond", "handler", "event-create", "content", "parse-error", "error", err)
			}
			return nil
		}

		if err := as.Store.ApplySync(context.Background(), []mutate.Operation{
			mutate.UpsertBase{Event: newEvent},
		}); err != nil {
			// edit the deferred message
			msg := fmt.Sprintf("Can't save event\n```%s```", err.Error())
			if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
				Content: &msg,
			}); err != nil {
				slog.Warn("can't respond", "handler", "event-create", "content", "save-error", "error", err)
			}
			return fmt.Errorf("event_handler:create: can't save event: %w", err)
		}

		// edit the deferred message
		msg := "Event created."
		if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
			Content: &msg,
			Embeds:  &[]*discordgo.MessageEmbed{eventEmbed(newEvent)},
		}); err != nil {
			slog.Warn("can't respond", "handler", "event-create", "content", "created", "error", err)
		}
		return nil
	}
}
