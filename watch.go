package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/katatrina/gundam-live/internal/apiclient"
	"github.com/katatrina/gundam-live/internal/auction"
	"github.com/katatrina/gundam-live/internal/event"
	"github.com/katatrina/gundam-live/internal/notification"
	"github.com/katatrina/gundam-live/internal/realtime"
	"github.com/katatrina/gundam-live/internal/session"
	"github.com/katatrina/gundam-live/internal/token"
	"github.com/katatrina/gundam-live/internal/util"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	tokenLeeway   = 30 * time.Second
	notifyTimeout = 15 * time.Second
	bidWait       = 30 * time.Second
)

var errNoCredential = errors.New("no access token: set ACCESS_TOKEN or LOGIN_EMAIL and LOGIN_PASSWORD")

type watchFlags struct {
	bid    int64
	wsURL  string
	apiURL string
}

func newWatchCmd(a *app) *cobra.Command {
	flags := watchFlags{}

	cmd := &cobra.Command{
		Use:   "watch <auction-id>",
		Short: "Join an auction room and follow its bids, optionally placing one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.wsURL != "" {
				a.config.WSBaseURL = flags.wsURL
			}
			if flags.apiURL != "" {
				a.config.APIBaseURL = flags.apiURL
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runWatch(ctx, a.config, args[0], flags.bid)
		},
	}
	cmd.Flags().Int64Var(&flags.bid, "bid", 0, "place a bid of this amount once connected")
	cmd.Flags().StringVar(&flags.wsURL, "ws-url", "", "real-time endpoint (overrides WS_BASE_URL)")
	cmd.Flags().StringVar(&flags.apiURL, "api-url", "", "REST endpoint (overrides API_BASE_URL)")
	return cmd
}

func runWatch(ctx context.Context, config util.Config, auctionID string, bid int64) error {
	api := apiclient.New(config.APIBaseURL)
	defer api.Close()

	// store stays a nil interface without Redis so the login provider skips caching.
	var store apiclient.TokenStore
	var redisStore *session.RedisStore
	if config.RedisServerAddress != "" {
		redisDb := redis.NewClient(&redis.Options{
			Addr:     config.RedisServerAddress,
			Password: "", // no password set
			DB:       0,  // use default DB
		})
		defer redisDb.Close()

		if err := redisDb.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Msg("failed to connect to redis, tokens will not be cached 😣")
		} else {
			redisStore = session.NewRedisStore(redisDb)
			store = redisStore
			log.Info().Msg("connected to redis ✅")
		}
	}

	login := apiclient.NewLoginProvider(api, store, config.LoginEmail, config.LoginPassword)
	tokens := token.Chain(
		token.ExpiryGuard(token.Static(config.AccessToken), tokenLeeway),
		token.ExpiryGuard(login, tokenLeeway),
	)

	if redisStore != nil && config.LoginEmail != "" && config.LoginPassword != "" {
		refresher, err := session.NewRefresher(redisStore, login, config.TokenRefreshInterval, config.TokenRefreshWindow)
		if err != nil {
			return err
		}
		if err = refresher.Start(); err != nil {
			return err
		}
		defer refresher.Stop()
		log.Info().Dur("interval", config.TokenRefreshInterval).Msg("token refresher started ✅")
	}

	accessToken, err := tokens.Token(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to obtain access token 😣")
		return err
	}
	if accessToken == "" {
		return errNoCredential
	}
	me := resolveBidder(ctx, api, accessToken)
	if me.ID == "" {
		log.Warn().Msg("cannot tell who the access token belongs to, following the auction without bidding 😣")
		if bid > 0 {
			return auction.ErrNoBidder
		}
	}

	title := auctionID
	snapshot, err := api.GetAuction(ctx, accessToken, auctionID)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load auction snapshot, following live events only")
	} else {
		title = snapshot.ProductTitle
		log.Info().
			Str("product", util.TruncateContent(snapshot.ProductTitle, 60)).
			Str("current_price", util.FormatVND(snapshot.CurrentPrice)).
			Int("bids", len(snapshot.Bids)).
			Msg("auction snapshot loaded ✅")
	}

	client := realtime.NewClient(config.WSBaseURL, tokens,
		realtime.WithReconnectPolicy(realtime.ReconnectPolicy{
			MaxAttempts: config.ReconnectMaxAttempts,
			BaseDelay:   config.ReconnectBaseDelay,
			MaxDelay:    config.ReconnectMaxDelay,
		}),
		realtime.WithPingInterval(config.PingInterval),
	)

	notifier := newNotifier(config)
	tracker := auction.Watch(client, auctionID, me.ID, trackerOptions(me, title, notifier)...)
	client.On(event.TypeSellerNotice, sellerNoticeHandler(me, notifier))
	if snapshot != nil {
		tracker.Seed(snapshot.CurrentPrice, historyOf(snapshot))
	}

	connected := make(chan struct{})
	var connectedOnce sync.Once
	client.On(realtime.EventConnected, func(json.RawMessage) error {
		connectedOnce.Do(func() { close(connected) })
		log.Info().Str("auction_id", auctionID).Msg("connected to auction room ✅")
		return nil
	})
	client.On(realtime.EventDisconnected, func(json.RawMessage) error {
		log.Warn().Int("attempts", client.Attempts()).Msg("disconnected from real-time server")
		return nil
	})
	client.On(realtime.EventError, func(payload json.RawMessage) error {
		log.Warn().RawJSON("error", payload).Msg("real-time connection error 😣")
		return nil
	})

	if err = client.Connect(ctx); err != nil {
		tracker.Close()
		return err
	}

	if bid > 0 {
		select {
		case <-connected:
			if err = tracker.PlaceBid(bid); err != nil {
				log.Error().Err(err).Int64("amount", bid).Msg("failed to place bid 😣")
			} else {
				log.Info().Str("amount", util.FormatVND(bid)).Msg("bid sent")
			}
		case <-time.After(bidWait):
			log.Error().Msg("gave up placing bid, still not connected 😣")
		case <-ctx.Done():
		}
	}

	<-ctx.Done()

	tracker.Close()
	client.Disconnect()

	final := tracker.Snapshot()
	log.Info().
		Str("status", final.Status.String()).
		Str("current_price", util.FormatVND(final.CurrentPrice)).
		Msg("stopped watching auction")
	return nil
}

// bidder is who the access token belongs to. Legacy servers only name
// bidders, so the display name matters as much as the id.
type bidder struct {
	ID   string
	Name string
}

type userFetcher interface {
	GetMe(ctx context.Context, accessToken string) (*apiclient.User, error)
}

// resolveBidder asks the API who we are and falls back to the token subject.
func resolveBidder(ctx context.Context, users userFetcher, accessToken string) bidder {
	user, err := users.GetMe(ctx, accessToken)
	if err == nil && user.ID != "" {
		return bidder{ID: user.ID, Name: user.FullName}
	}
	log.Warn().Err(err).Msg("failed to load current user, legacy bids cannot be matched by name")

	subject, _ := token.Subject(accessToken)
	return bidder{ID: subject}
}

// trackerOptions lets the tracker recognise legacy echoes by our name.
func trackerOptions(me bidder, title string, notifier notification.Notifier) []auction.Option {
	opts := []auction.Option{}
	if me.Name != "" {
		opts = append(opts, auction.WithBidderName(me.Name))
	}

	return append(opts, auction.WithOnChange(onStatusChange(me, title, notifier)))
}

// onStatusChange stays quiet when we are anonymous: without an id every
// status is about somebody else.
func onStatusChange(me bidder, title string, notifier notification.Notifier) auction.ChangeFunc {
	return func(prev, next auction.State) {
		log.Info().
			Str("status", next.Status.String()).
			Str("current_price", util.FormatVND(next.CurrentPrice)).
			Int("bids", len(next.Bids)).
			Str("error", next.LastError).
			Msg("auction updated")

		if me.ID == "" {
			return
		}
		if n, ok := notification.FromStatusChange(title, prev, next); ok {
			n.RecipientID = me.ID
			go notify(notifier, n)
		}
	}
}

// sellerNoticeHandler forwards bids on our own listings to the notifier.
func sellerNoticeHandler(me bidder, notifier notification.Notifier) realtime.Handler {
	return func(payload json.RawMessage) error {
		n, err := notification.FromSellerNotice(payload)
		if err != nil {
			return err
		}
		n.RecipientID = me.ID
		go notify(notifier, n)
		return nil
	}
}

func historyOf(snapshot *apiclient.Auction) []auction.Bid {
	bids := make([]auction.Bid, 0, len(snapshot.Bids))
	for _, b := range snapshot.Bids {
		bids = append(bids, auction.Bid{
			ID:         b.ID,
			BidderID:   b.BidderID,
			BidderName: b.Bidder,
			Amount:     b.Amount,
			PlacedAt:   b.CreatedAt,
		})
	}
	return bids
}

// newNotifier always logs and adds Discord and email when they are configured.
func newNotifier(config util.Config) notification.Notifier {
	notifiers := notification.Multi{notification.NewLogNotifier(log.Logger)}

	if config.DiscordBotToken != "" && config.DiscordChannelID != "" {
		discord, err := notification.NewDiscordNotifier(config.DiscordBotToken, config.DiscordChannelID)
		if err != nil {
			log.Warn().Err(err).Msg("failed to create Discord notifier 😣")
		} else {
			notifiers = append(notifiers, discord)
		}
	}

	if config.SMTPHost != "" && config.NotifyEmail != "" {
		email, err := notification.NewEmailNotifier(config.SMTPHost, config.SMTPPort, config.SMTPUsername, config.SMTPPassword, config.NotifyEmail)
		if err != nil {
			log.Warn().Err(err).Msg("failed to create email notifier 😣")
		} else {
			notifiers = append(notifiers, email)
		}
	}

	return notifiers
}

func notify(notifier notification.Notifier, n notification.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	if err := notifier.Notify(ctx, n); err != nil {
		log.Error().Err(err).Str("type", n.Type).Msg("failed to send notification 😣")
	}
}
