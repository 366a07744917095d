package utils

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"sync"
	"time"

	"revent/src-server/event"
	"revent/src-server/model"
	"revent/src-server/session"
	"revent/src-server/store"

	"github.com/bwmarrin/discordgo"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type AppState struct {
	Config    *Config
	RawDB     *sql.DB
	BunDB     *bun.DB
	DgSession *discordgo.Session
	When      *when.Parser

	// the edit engine
	Store     *store.Store
	Scheduler *session.SaveScheduler
	Previews  *session.PreviewCoordinator

	// will be sent to Discord
	appCmdInfo map[string]*discordgo.ApplicationCommand
	// handling commands from the Discord WSAPI
	appCmdHandler map[string]func(s *discordgo.Session, i *discordgo.InteractionCreate) error
	appCmdMutex   sync.RWMutex

	// one open editor per Discord user
	sessions     map[string]*session.EditSession
	sessionMutex sync.Mutex

	MetricChans        *Metric
	AppCloseSignalChan chan os.Signal
	startedAt          time.Time

	shutdownChans []chan struct{}
	shutdownMutex sync.Mutex
}

func NewAppState() *AppState {
	as := &AppState{
		appCmdInfo:         make(map[string]*discordgo.ApplicationCommand),
		appCmdHandler:      make(map[string]func(s *discordgo.Session, i *discordgo.InteractionCreate) error),
		sessions:           make(map[string]*session.EditSession),
		MetricChans:        NewMetric(),
		AppCloseSignalChan: make(chan os.Signal, 1),
		startedAt:          time.Now(),
	}

	// date parser
	as.When = when.New(nil)
	as.When.Add(en.All...)
	as.When.Add(common.All...)

	// env
	as.Config = NewConfig()

	// database
	var err error
	as.RawDB, err = sql.Open(sqliteshim.ShimName, as.Config.GetSqlitePath())
	if err != nil {
		slog.Error("cannot open sqlite database", "error", err)
		os.Exit(1)
	}
	as.RawDB.SetMaxIdleConns(8)
	as.BunDB = bun.NewDB(as.RawDB, sqlitedialect.New())

	// engine wiring: store behind the scheduler, previews layered on
	// committed state straight from the store
	as.Store = store.New(as.BunDB).
		WithLatencyChans(as.MetricChans.DatabaseRead, as.MetricChans.DatabaseWrite)
	as.Scheduler = session.NewSaveScheduler(as.Store, as.Config.GetDebounce())
	as.Previews = session.NewPreviewCoordinator(as.CommittedEvent)

	// discord session is optional: the HTTP surface works without it
	if token := as.Config.GetDiscordAppToken(); token != "" {
		as.DgSession, err = discordgo.New("Bot " + token)
		if err != nil {
			slog.Error("cannot create discord session", "error", err)
			os.Exit(1)
		}
	}

	if err := model.CreateSchema(as.BunDB); err != nil {
		slog.Error("cannot create database schema", "error", err)
		os.Exit(1)
	}

	return as
}

// GetUptime returns how long the app has been running.
func (as *AppState) GetUptime() time.Duration {
	return time.Since(as.startedAt).Truncate(time.Second)
}

// CommittedEvent is the preview coordinator's committed-state lookup.
func (as *AppState) CommittedEvent(id string) *event.Event {
	ev, err := as.Store.GetEvent(context.Background(), id)
	if err != nil {
		return nil
	}
	return ev
}

func (as *AppState) AddAppCmdInfo(id string, info *discordgo.ApplicationCommand) {
	as.appCmdMutex.Lock()
	defer as.appCmdMutex.Unlock()
	as.appCmdInfo[id] = info
}

func (as *AppState) AddAppCmdHandler(id string, handler func(s *discordgo.Session, i *discordgo.InteractionCreate) error) {
	as.appCmdMutex.Lock()
	defer as.appCmdMutex.Unlock()
	as.appCmdHandler[id] = handler
}

func (as *AppState) RemoveAppCmdHandler(id string) {
	as.appCmdMutex.Lock()
	defer as.appCmdMutex.Unlock()
	delete(as.appCmdHandler, id)
}

func (as *AppState) GetAppCmdHandler(id string) (func(s *discordgo.Session, i *discordgo.InteractionCreate) error, bool) {
	as.appCmdMutex.RLock()
	defer as.appCmdMutex.RUnlock()
	handler, ok := as.appCmdHandler[id]
	return handler, ok
}

func (as *AppState) IterateAppCmdInfo(fn func(k string, v *discordgo.ApplicationCommand)) {
	as.appCmdMutex.RLock()
	defer as.appCmdMutex.RUnlock()
	for k, v := range as.appCmdInfo {
		fn(k, v)
	}
}

func (as *AppState) NukeAppCmdInfo() {
	as.appCmdMutex.Lock()
	defer as.appCmdMutex.Unlock()
	as.appCmdInfo = make(map[string]*discordgo.ApplicationCommand)
}

// GetOrCreateSession returns the open editor for a user, creating one
// when none exists.
func (as *AppState) GetOrCreateSession(userID string) *session.EditSession {
	as.sessionMutex.Lock()
	defer as.sessionMutex.Unlock()
	if sess, ok := as.sessions[userID]; ok {
		return sess
	}
	sess := session.NewEditSession(as.Scheduler, as.Previews, as.Store)
	as.sessions[userID] = sess
	return sess
}

// CloseSession tears down and forgets a user's editor.
func (as *AppState) CloseSession(userID string) {
	as.sessionMutex.Lock()
	sess, ok := as.sessions[userID]
	delete(as.sessions, userID)
	as.sessionMutex.Unlock()
	if ok {
		sess.Close()
	}
}

// CreateGracefulShutdownChan returns a channel closed when the app is
// shutting down; long-running goroutines select on it.
func (as *AppState) CreateGracefulShutdownChan() *chan struct{} {
	as.shutdownMutex.Lock()
	defer as.shutdownMutex.Unlock()
	ch := make(chan struct{})
	as.shutdownChans = append(as.shutdownChans, ch)
	return &ch
}

// GracefulShutdown closes every open editor (flushing meaningful
// pending content), then the remaining timers, then notifies
// subscribers and closes the database.
func (as *AppState) GracefulShutdown() {
	as.sessionMutex.Lock()
	sessions := make([]*session.EditSession, 0, len(as.sessions))
	for _, sess := range as.sessions {
		sessions = append(sessions, sess)
	}
	as.sessions = make(map[string]*session.EditSession)
	as.sessionMutex.Unlock()
	for _, sess := range sessions {
		sess.Close()
	}
	as.Scheduler.FlushAll()

	as.shutdownMutex.Lock()
	for _, ch := range as.shutdownChans {
		close(ch)
	}
	as.shutdownChans = nil
	as.shutdownMutex.Unlock()

	if err := as.BunDB.Close(); err != nil {
		slog.Warn("cannot close database", "error", err)
	}
}
