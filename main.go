package main

import (
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"revent/src-server/handler"
	"revent/src-server/handler/event_handler"
	"revent/src-server/metric"
	"revent/src-server/route"
	"revent/src-server/scheduler"
	"revent/src-server/utils"

	"github.com/bwmarrin/discordgo"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func init() {
	if err := godotenv.Load(); err != nil {
		slog.Info(err.Error())
	}
	slog.SetDefault(slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      slog.LevelDebug,
			TimeFormat: time.RFC1123Z,
		}),
	))
}

func main() {
	// There are 2 important things (and others) inside the AppState:
	// - appCmdInfo: a map of all slash commands
	// - appCmdHandler: a map of all slash command handlers
	as := utils.NewAppState()

	// the bot surface is optional; without a token the HTTP surface
	// still serves the full edit engine
	if as.DgSession != nil {
		// injecting interaction handlers into appCmdInfo, appCmdHandler in AppState
		event_handler.Init(as)
		handler.Ping(as)

		// tell discordgo how to handle interactions from Discord (w/ appCmdHandler)
		as.DgSession.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
			execute := func(id string) {
				if handler, ok := as.GetAppCmdHandler(id); ok {
					if err := handler(s, i); err != nil {
						slog.Error("handler error", "command", id, "error", err.Error())
					}
					return
				}
				if i == nil || i.Interaction == nil {
					return
				}
				utils.InteractRespHiddenReply(s, i, "Expired interaction")
				username := func(i *discordgo.InteractionCreate) string {
					if i == nil || i.User == nil {
						return "unknown"
					}
					return i.User.Username
				}(i)
				slog.Debug("someone used an expired interaction", "username", username, "custom_id", id)
			}

			switch i.Type {
			case discordgo.InteractionApplicationCommand: // slash commands
				cmdData := i.ApplicationCommandData()
				execute(cmdData.Name)
			case discordgo.InteractionMessageComponent: // buttons, dropdowns, etc
				componentData := i.MessageComponentData()
				execute(componentData.CustomID)
			case discordgo.InteractionModalSubmit: // modal a.k.a. text input
				modalData := i.ModalSubmitData()
				execute(modalData.CustomID)
			default:
				slog.Error("unknown interaction type", "type", i.Type)
			}
		})

		// open a connection to Discord
		if err := as.DgSession.Open(); err != nil {
			slog.Error("error opening discord connection", "error", err)
			os.Exit(1)
		}
		defer as.DgSession.Close()

		// tell Discord what commands we have (w/ appCmdInfo)
		if _, err := as.DgSession.ApplicationCommandBulkOverwrite(
			as.Config.GetDiscordClientId(),
			as.Config.GetDiscordGuildID(),
			func() []*discordgo.ApplicationCommand {
				var cmds []*discordgo.ApplicationCommand
				as.IterateAppCmdInfo(func(k string, v *discordgo.ApplicationCommand) {
					cmds = append(cmds, v)
				})
				return cmds
			}()); err != nil {
			slog.Error("can't create slash commands", "error", err.Error())
		}

		// cleanup appCmdInfo from memory
		as.NukeAppCmdInfo()
		runtime.GC()

		go scheduler.ReminderNotify(as)

		slog.Info("number of guilds", "guilds", len(as.DgSession.State.Guilds))
	}

	go metric.Init(as)

	// http server
	go func() {
		muxer := http.NewServeMux()
		muxer.Handle("GET /metrics", promhttp.Handler())
		route.Calendar(muxer, as)
		if err := http.ListenAndServe(":"+as.Config.GetPort(), muxer); err != nil {
			slog.Error("cannot start HTTP server", "error", err)
			as.AppCloseSignalChan <- syscall.SIGTERM
		}
	}()

	slog.Info("app is now running, press Ctrl+C to exit")

	signal.Notify(as.AppCloseSignalChan, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-as.AppCloseSignalChan

	slog.Info("Gracefully shutting down...")
	as.GracefulShutdown()
}
