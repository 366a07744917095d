package event_handler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"revent/src-server/event"
	"revent/src-server/mutate"
	"revent/src-server/session"
	"revent/src-server/utils"

	"github.com/bwmarrin/discordgo"
)

func modify(as *utils.AppState, cmdInfo *[]*discordgo.ApplicationCommandOption, cmdHandler map[string]func(s *discordgo.Session, i *discordgo.InteractionCreate) error) {
	id := "modify"
	*cmdInfo = append(*cmdInfo, &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionSubCommand,
		Name:        id,
		Description: "Modify an existing event.",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "event-id",
				Description: "ID of the event to modify.",
				Required:    true,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "occurrence",
				Description: "For repeating events, which occurrence date to modify.",
				Required:    false,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "title",
				Description: "The new title.",
				Required:    false,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "description",
				Description: "The new description.",
				Required:    false,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "start",
				Description: "The new start date.",
				Required:    false,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "end",
				Description: "The new end date.",
				Required:    false,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "location",
				Description: "The new location.",
				Required:    false,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "category",
				Description: "The new category.",
				Required:    false,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "recurrence",
				Description: "The new recurrence rule, or \"none\" to stop repeating.",
				Required:    false,
			},
		},
	})
	cmdHandler[id] = modifyHandler(as)
}

func modifyHandler(as *utils.AppState) func(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	return func(s *discordgo.Session, i *discordgo.InteractionCreate) error {
		interaction := i.Interaction

		// respond to original request
		if err := s.InteractionRespond(interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		}); err != nil {
			slog.Warn("can't respond", "handler", "event-modify", "content", "deferring", "error", err)
			return nil
		}

		options := optionMap(i)

		target, base, err := resolveTarget(as, options)
		if err != nil {
			// edit the deferred message
			msg := fmt.Sprintf("Can't find event: %s", err.Error())
			if _, err := s.InteractionResponseEdit(interaction, &discordgo.WebhookEdit{
				Content: &msg,
			}); err != nil {
				slog.Warn("can't respond", "handler", "event-modify", "content", "event-not-found", "error", err)
			}
			return nil
		}

		changes, err := changesFromOptions(as, options)
		if err != nil {
			// edit the deferred message
			msg := fmt.Sprintf("Can't parse change: %s", err.Error())
			if _, err := s.InteractionResponseEdit(interaction, &discordgo.WebhookEdit{
				Content: &msg,
			}); err != nil {
				slog.Warn("can't respond", "handler", "event-modify", "content", "parse-error", "error", err)
			}
			return nil
		}
		if changes.IsEmpty() {
			// edit the deferred message
			msg := "Nothing to change."
			if _, err := s.InteractionResponseEdit(interaction, &discordgo.WebhookEdit{
				Content: &msg,
			}); err != nil {
				slog.Warn("can't respond", "handler", "event-modify", "content", "no-change", "error", err)
			}
			return nil
		}

		userID := interactionUserID(i)
		sess := as.GetOrCreateSession(userID)
		if err := sess.Load(target, base); err != nil {
			as.CloseSession(userID)
			return fmt.Errorf("event_handler:modify: can't load session: %w", err)
		}
		if err := sess.SetField(changes); err != nil {
			as.CloseSession(userID)
			return fmt.Errorf("event_handler:modify: can't stage change: %w", err)
		}

		if sess.State() != session.StateScopeDecisionPending {
			// standalone event or bookkeeping-only change; the
			// scheduler owns it from here
			sess.Confirm()
			updated := sess.Working()
			as.CloseSession(userID)
			msg := "Event updated."
			if _, err := s.InteractionResponseEdit(interaction, &discordgo.WebhookEdit{
				Content: &msg,
				Embeds:  &[]*discordgo.MessageEmbed{eventEmbed(updated)},
			}); err != nil {
				slog.Warn("can't respond", "handler", "event-modify", "content", "updated", "error", err)
			}
			return nil
		}

		// the change touches series content; ask how far it reaches
		scope, decided, timeout, err := askScope(as, s, &interaction, target.ID, "Apply this change to:")
		if err != nil {
			as.CloseSession(userID)
			msg := fmt.Sprintf("Can't ask for a scope, can't continue: %s", err.Error())
			if _, err := s.InteractionResponseEdit(interaction, &discordgo.WebhookEdit{
				Content: &msg,
			}); err != nil {
				slog.Warn("can't respond", "handler", "event-modify", "content", "ask-scope", "error", err)
			}
			return err
		}
		if timeout {
			_ = sess.DismissScope()
			as.CloseSession(userID)
			if _, err := s.ChannelMessageSend(i.ChannelID, "Timed out waiting for a scope choice."); err != nil {
				slog.Warn("can't respond", "handler", "event-modify", "content", "timeout", "error", err)
			}
			return nil
		}
		if !decided {
			_ = sess.DismissScope()
			as.CloseSession(userID)
			// respond to button request
			if err := s.InteractionRespond(interaction, &discordgo.InteractionResponse{
				Type: discordgo.InteractionResponseChannelMessageWithSource,
				Data: &discordgo.InteractionResponseData{
					Content: "Change discarded.",
				},
			}); err != nil {
				slog.Warn("can't respond", "handler", "event-modify", "content", "cancel", "error", err)
			}
			return nil
		}

		if err := sess.ChooseScope(scope); err != nil {
			as.CloseSession(userID)
			return fmt.Errorf("event_handler:modify: can't apply scope: %w", err)
		}
		as.CloseSession(userID)

		// respond to button request
		if err := s.InteractionRespond(interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content: fmt.Sprintf("Event updated (%s).", scope.String()),
			},
		}); err != nil {
			slog.Warn("can't respond", "handler", "event-modify", "content", "updated", "error", err)
		}
		return nil
	}
}

// resolveTarget loads the event named by the options, following the
// occurrence date into the expanded series when one is given.
func resolveTarget(as *utils.AppState, options map[string]*discordgo.ApplicationCommandInteractionDataOption) (*event.Event, *event.Event, error) {
	var eventID string
	if opt, ok := options["event-id"]; ok {
		eventID = strings.TrimSpace(opt.StringValue())
	}
	if eventID == "" {
		return nil, nil, fmt.Errorf("event ID is empty")
	}

	ctx := context.Background()
	target, err := as.Store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, nil, err
	}

	if opt, ok := options["occurrence"]; ok {
		date, err := utils.ParseDateText(as.When, opt.StringValue(), as.Config.GetLocation())
		if err != nil {
			return nil, nil, fmt.Errorf("can't parse occurrence date: %w", err)
		}
		occurrence, err := as.Store.FindOccurrence(ctx, eventID, date)
		if err != nil {
			return nil, nil, err
		}
		target = occurrence
	}

	base, err := as.Store.SeriesBase(ctx, target)
	if err != nil {
		return nil, nil, err
	}
	return target, base, nil
}

// changesFromOptions builds the change set from whichever options the
// user filled in. Absent options stay nil and never touch the event.
func changesFromOptions(as *utils.AppState, options map[string]*discordgo.ApplicationCommandInteractionDataOption) (event.ChangeSet, error) {
	var changes event.ChangeSet
	if opt, ok := options["title"]; ok {
		title := utils.CleanupString(opt.StringValue())
		if title == "" {
			return event.ChangeSet{}, fmt.Errorf("title can't be blank")
		}
		changes.Title = &title
	}
	if opt, ok := options["description"]; ok {
		description := opt.StringValue()
		changes.Description = &description
	}
	if opt, ok := options["location"]; ok {
		location := utils.CleanupString(opt.StringValue())
		changes.Location = &location
	}
	if opt, ok := options["category"]; ok {
		category := utils.CleanupString(opt.StringValue())
		changes.Category = &category
	}
	if opt, ok := options["start"]; ok {
		start, err := utils.ParseDateText(as.When, opt.StringValue(), as.Config.GetLocation())
		if err != nil {
			return event.ChangeSet{}, fmt.Errorf("can't parse start date: %w", err)
		}
		unix := start.UTC().Unix()
		changes.StartUnixUTC = &unix
	}
	if opt, ok := options["end"]; ok {
		end, err := utils.ParseDateText(as.When, opt.StringValue(), as.Config.GetLocation())
		if err != nil {
			return event.ChangeSet{}, fmt.Errorf("can't parse end date: %w", err)
		}
		unix := end.UTC().Unix()
		changes.EndUnixUTC = &unix
	}
	if opt, ok := options["recurrence"]; ok {
		raw := strings.TrimSpace(opt.StringValue())
		changes.Recurrence = &raw
	}
	return changes, nil
}

// askScope edits the deferred message into a scope prompt and blocks
// until a button press or the two minute timeout. The interaction
// pointer is swapped to the button's interaction so the caller's
// follow-up responds to the press.
func askScope(as *utils.AppState, s *discordgo.Session, interaction **discordgo.Interaction, eventID, prompt string) (mutate.Scope, bool, bool, error) {
	singleCustomId := "scope-single-" + eventID
	followingCustomId := "scope-following-" + eventID
	allCustomId := "scope-all-" + eventID
	cancelCustomId := "scope-cancel-" + eventID
	scopeCh := make(chan mutate.Scope)
	cancelCh := make(chan struct{})
	defer close(scopeCh)
	defer close(cancelCh)

	if _, err := s.InteractionResponseEdit(*interaction, &discordgo.WebhookEdit{
		Content: &prompt,
		Components: &[]discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.Button{
						Label:    "This event",
						Style:    discordgo.PrimaryButton,
						CustomID: singleCustomId,
					},
					discordgo.Button{
						Label:    "This and following events",
						Style:    discordgo.PrimaryButton,
						CustomID: followingCustomId,
					},
					discordgo.Button{
						Label:    "All events",
						Style:    discordgo.PrimaryButton,
						CustomID: allCustomId,
					},
					discordgo.Button{
						Label:    "Cancel",
						Style:    discordgo.SecondaryButton,
						CustomID: cancelCustomId,
					},
				},
			},
		},
	}); err != nil {
		return mutate.ScopeSingle, false, false, fmt.Errorf("askScope: %w", err)
	}

	scopeHandler := func(scope mutate.Scope) func(s *discordgo.Session, i *discordgo.InteractionCreate) error {
		return func(s *discordgo.Session, i *discordgo.InteractionCreate) error {
			*interaction = i.Interaction
			scopeCh <- scope
			return nil
		}
	}
	as.AddAppCmdHandler(singleCustomId, scopeHandler(mutate.ScopeSingle))
	as.AddAppCmdHandler(followingCustomId, scopeHandler(mutate.ScopeFollowing))
	as.AddAppCmdHandler(allCustomId, scopeHandler(mutate.ScopeAll))
	as.AddAppCmdHandler(cancelCustomId, func(s *discordgo.Session, i *discordgo.InteractionCreate) error {
		*interaction = i.Interaction
		cancelCh <- struct{}{}
		return nil
	})
	defer as.RemoveAppCmdHandler(singleCustomId)
	defer as.RemoveAppCmdHandler(followingCustomId)
	defer as.RemoveAppCmdHandler(allCustomId)
	defer as.RemoveAppCmdHandler(cancelCustomId)

	select {
	case <-time.After(time.Minute * 2):
		return mutate.ScopeSingle, false, true, nil
	case <-cancelCh:
		return mutate.ScopeSingle, false, false, nil
	case scope := <-scopeCh:
		return scope, true, false, nil
	}
}

// interactionUserID keys edit sessions; guild and DM interactions
// carry the user in different places.
func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return i.ChannelID
}
