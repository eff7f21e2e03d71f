package notification

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

type channelSender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordNotifier posts notifications to a Discord channel through a bot.
type DiscordNotifier struct {
	discord   channelSender
	channelID string
}

func NewDiscordNotifier(botToken, channelID string) (*DiscordNotifier, error) {
	discord, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	return &DiscordNotifier{
		discord:   discord,
		channelID: channelID,
	}, nil
}

func (n *DiscordNotifier) Notify(ctx context.Context, notification Notification) error {
	message := fmt.Sprintf("**%s**\n%s", notification.Title, notification.Message)

	_, err := n.discord.ChannelMessageSend(n.channelID, message, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to send Discord message: %w", err)
	}
	return nil
}
