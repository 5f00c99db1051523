// Package app wires the daemon together and owns the reconnect policy
// around the EventSub session.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/user/twitch-sentry/internal/auth"
	"github.com/user/twitch-sentry/internal/config"
	"github.com/user/twitch-sentry/internal/eventsub"
	"github.com/user/twitch-sentry/internal/notify"
	"github.com/user/twitch-sentry/internal/state"
	"github.com/user/twitch-sentry/internal/twitch"
)

const reconnectBaseDelay = time.Second

// App orchestrates the daemon components.
type App struct {
	cfg      *config.Manager
	store    *auth.Store
	tracker  *state.Tracker
	notifier *notify.Notifier

	api    *twitch.Client
	subMgr *eventsub.SubscriptionManager

	runCtx     context.Context
	watched    map[string]twitch.User // userID -> user
	watchedIDs []string

	// sessionUp marks that the current Connect attempt got a welcome; it
	// is written by the Connected handler, which runs on the same
	// goroutine as the reconnect loop.
	sessionUp bool
}

// New loads configuration and opens the token store.
func New() (*App, error) {
	cfg, err := config.NewManager()
	if err != nil {
		return nil, fmt.Errorf("initializing config: %w", err)
	}

	store, err := auth.NewStore()
	if err != nil {
		return nil, fmt.Errorf("opening token store: %w", err)
	}

	c := cfg.Get()
	return &App{
		cfg:      cfg,
		store:    store,
		tracker:  state.NewTracker(),
		notifier: notify.New(c.NotifyOnLive, c.NotifyOnCategory),
		watched:  make(map[string]twitch.User),
	}, nil
}

// Login runs the device-code flow and stores the resulting token.
func (a *App) Login(ctx context.Context) error {
	clientID := a.cfg.Get().ClientID
	if clientID == "" {
		return errors.New("no client_id configured; set it in " + a.cfg.FilePath())
	}

	flow := auth.NewDeviceFlow(clientID)
	token, err := flow.Authenticate(ctx, func(userCode, verificationURI string) {
		log.Printf("Visit %s and enter code %s", verificationURI, userCode)
		_ = a.notifier.AuthCode(userCode, verificationURI)
	})
	if err != nil {
		return err
	}

	if err := a.store.SaveToken(token); err != nil {
		return fmt.Errorf("saving token: %w", err)
	}
	log.Printf("Logged in as %s", token.UserLogin)
	return nil
}

// Logout removes the stored token.
func (a *App) Logout(ctx context.Context) error {
	return a.store.DeleteToken()
}

// SetChannels replaces the configured watch list.
func (a *App) SetChannels(channels []string) error {
	return a.cfg.SetChannels(channels)
}

// Run resolves the watch list and keeps an EventSub session alive until
// ctx is cancelled. Transport loss restarts the session with exponential
// backoff; protocol violations are fatal.
func (a *App) Run(ctx context.Context) error {
	cfg := a.cfg.Get()

	token, err := a.store.LoadToken()
	if err != nil {
		return fmt.Errorf("loading token (run with -login first): %w", err)
	}
	if !token.IsValid() {
		return errors.New("stored token is expired; run with -login again")
	}

	if len(cfg.Channels) == 0 {
		return errors.New("no channels configured; run with -channels or edit " + a.cfg.FilePath())
	}

	api, err := twitch.NewClient(cfg.ClientID)
	if err != nil {
		return err
	}
	api.SetAccessToken(token.AccessToken)
	a.api = api
	a.runCtx = ctx

	if err := a.resolveWatchList(ctx, cfg.Channels); err != nil {
		return err
	}

	a.subMgr = eventsub.NewSubscriptionManager(cfg.ClientID, token.AccessToken)

	maxDelay := time.Duration(cfg.ReconnectMaxDelaySec) * time.Second
	delay := reconnectBaseDelay

	for {
		a.sessionUp = false
		err := a.runSession(ctx, cfg)

		if ctx.Err() != nil {
			return nil
		}
		var pe *eventsub.ProtocolError
		if errors.As(err, &pe) {
			return err
		}
		if err != nil {
			log.Printf("EventSub session failed: %v, retrying in %v", err, delay)
		} else {
			log.Printf("EventSub session ended, retrying in %v", delay)
		}

		if a.sessionUp {
			delay = reconnectBaseDelay
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

func (a *App) resolveWatchList(ctx context.Context, logins []string) error {
	users, err := a.api.ResolveLogins(ctx, logins)
	if err != nil {
		return fmt.Errorf("resolving channels: %w", err)
	}

	found := make(map[string]bool, len(users))
	a.watched = make(map[string]twitch.User, len(users))
	a.watchedIDs = a.watchedIDs[:0]
	for _, u := range users {
		a.watched[u.ID] = u
		a.watchedIDs = append(a.watchedIDs, u.ID)
		found[strings.ToLower(u.Login)] = true
	}
	for _, login := range logins {
		if !found[strings.ToLower(login)] {
			log.Printf("Channel %q does not exist, skipping", login)
		}
	}

	if len(a.watchedIDs) == 0 {
		return errors.New("none of the configured channels exist")
	}
	log.Printf("Watching %d channel(s)", len(a.watchedIDs))
	return nil
}

func (a *App) runSession(ctx context.Context, cfg config.Config) error {
	subscriptionTypes := make([]string, len(eventsub.WatchedSubscriptionTypes))
	for i, t := range eventsub.WatchedSubscriptionTypes {
		subscriptionTypes[i] = string(t)
	}

	opts := []eventsub.Option{
		eventsub.WithParser(eventsub.NewMessageParser(subscriptionTypes...)),
		eventsub.WithConnectedHandler(a.handleConnected),
		eventsub.WithNotificationHandler(eventsub.Dispatch(eventsub.TypedHandlers{
			OnStreamOnline:  a.handleStreamOnline,
			OnStreamOffline: a.handleStreamOffline,
			OnChannelUpdate: a.handleChannelUpdate,
			OnDecodeError: func(subType string, err error) {
				log.Printf("Undecodable %s event: %v", subType, err)
			},
		})),
		eventsub.WithRevocationHandler(a.handleRevocation),
		eventsub.WithConnectionLostHandler(func(reason eventsub.DisconnectReason) {
			log.Printf("EventSub connection lost: %v", reason)
			a.tracker.Reset()
		}),
		eventsub.WithUnknownMessageTypeHandler(func(name string) {
			log.Printf("Unknown EventSub message type %q", name)
		}),
		eventsub.WithUnknownSubscriptionTypeHandler(func(name string) {
			log.Printf("Unknown EventSub subscription type %q", name)
		}),
		eventsub.WithParseFailureHandler(func(reason string) {
			log.Printf("EventSub message failed to parse: %s", reason)
		}),
	}
	if cfg.KeepaliveTimeoutSec != 0 {
		opts = append(opts, eventsub.WithKeepaliveTimeout(cfg.KeepaliveTimeoutSec))
	}

	return eventsub.NewClient(opts...).Connect(ctx)
}

func (a *App) handleConnected(session eventsub.Session) {
	a.sessionUp = true
	a.tracker.SetSession(state.SessionConnected, session.ID)
	log.Printf("EventSub connected, session %s, keepalive %ds",
		session.ID, session.KeepaliveTimeoutSeconds)

	// Registrations die with the old session, so each welcome needs a
	// fresh sync. Runs off the session loop to keep the watchdog fed.
	go func() {
		if err := a.subMgr.Sync(a.runCtx, session.ID, a.watchedIDs); err != nil {
			log.Printf("Subscription sync incomplete: %v", err)
		}
	}()
}

func (a *App) handleStreamOnline(event eventsub.StreamOnlineEvent) {
	fresh := a.tracker.MarkLive(state.LiveChannel{
		UserID:    event.BroadcasterUserID,
		UserLogin: event.BroadcasterUserLogin,
		UserName:  event.BroadcasterUserName,
		StartedAt: event.StartedAt,
	})
	if !fresh {
		return
	}
	log.Printf("%s went live", event.BroadcasterUserName)
	go a.announceLive(event)
}

// announceLive enriches the live notification with stream details when the
// API has them already.
func (a *App) announceLive(event eventsub.StreamOnlineEvent) {
	var category, title string
	streams, err := a.api.LiveStreams(a.runCtx, []string{event.BroadcasterUserID})
	if err == nil && len(streams) > 0 {
		category, title = streams[0].GameName, streams[0].Title
		a.tracker.MarkLive(state.LiveChannel{
			UserID:       event.BroadcasterUserID,
			UserLogin:    event.BroadcasterUserLogin,
			UserName:     event.BroadcasterUserName,
			CategoryID:   streams[0].GameID,
			CategoryName: streams[0].GameName,
			Title:        streams[0].Title,
			StartedAt:    event.StartedAt,
		})
	}
	if err := a.notifier.StreamLive(event.BroadcasterUserName, category, title); err != nil {
		log.Printf("Notification error: %v", err)
	}
}

func (a *App) handleStreamOffline(event eventsub.StreamOfflineEvent) {
	if _, wasLive := a.tracker.MarkOffline(event.BroadcasterUserID); wasLive {
		log.Printf("%s went offline", event.BroadcasterUserName)
	}
}

func (a *App) handleChannelUpdate(event eventsub.ChannelUpdateEvent) {
	_, changed := a.tracker.UpdateCategory(
		event.BroadcasterUserID, event.CategoryID, event.CategoryName, event.Title)
	if !changed {
		return
	}
	log.Printf("%s switched category to %s", event.BroadcasterUserName, event.CategoryName)
	if err := a.notifier.CategoryChange(event.BroadcasterUserName, event.CategoryName); err != nil {
		log.Printf("Notification error: %v", err)
	}
}

func (a *App) handleRevocation(msg eventsub.Message) {
	if msg.Notification == nil {
		return
	}
	sub := msg.Notification.Subscription
	log.Printf("Subscription revoked: %s (%s)", sub.Type, sub.Status)
	_ = a.notifier.SubscriptionRevoked(sub.Type)
}
