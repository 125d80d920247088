package digest

import (
	"context"

	"github.com/sirupsen/logrus"

	"feishu-digest-bot/internal/feishu"
	"feishu-digest-bot/internal/metrics"
	"feishu-digest-bot/internal/models"
)

// ChatSender is the slice of the platform client the publisher needs.
type ChatSender interface {
	ListChats(ctx context.Context) ([]feishu.Chat, error)
	SendCard(ctx context.Context, chatID string, card any) error
}

// DeliveryRecorder persists the outcome of one card send.
type DeliveryRecorder interface {
	LogDelivery(kind, targetID, status, errMsg string) error
}

// PublisherConfig carries the digest assembly settings.
type PublisherConfig struct {
	Source          models.DigestSource
	Title           string
	TemplateID      string
	TemplateVersion string
	DefaultImageKey string
	StaticItems     []models.DigestItem
	TargetChatIDs   []string
}

// Publisher assembles the digest card and pushes it to the bot's chats.
// A failed dynamic build falls back to the configured static item set; a
// failed send to one chat does not stop the broadcast.
type Publisher struct {
	normalizer *Normalizer
	sender     ChatSender
	recorder   DeliveryRecorder
	metrics    *metrics.Metrics
	cfg        PublisherConfig
}

// NewPublisher creates a digest publisher. recorder may be nil when no
// delivery log database is configured.
func NewPublisher(n *Normalizer, sender ChatSender, recorder DeliveryRecorder, m *metrics.Metrics, cfg PublisherConfig) *Publisher {
	return &Publisher{
		normalizer: n,
		sender:     sender,
		recorder:   recorder,
		metrics:    m,
		cfg:        cfg,
	}
}

// Publish builds the digest and sends it to every target chat.
func (p *Publisher) Publish(ctx context.Context) error {
	p.metrics.DigestBuilds.Inc()

	items, err := p.normalizer.Build(ctx, p.cfg.Source)
	if err != nil {
		logrus.Warnf("Failed to build digest items, using static data instead: %v", err)
		p.metrics.DigestFallbacks.Inc()
		items = p.cfg.StaticItems
	}

	items = p.fillDefaultPictures(items)
	card := BuildCard(p.cfg.TemplateID, p.cfg.TemplateVersion, p.cfg.Title, items)

	chatIDs := p.cfg.TargetChatIDs
	if len(chatIDs) == 0 {
		chats, err := p.sender.ListChats(ctx)
		if err != nil {
			return err
		}
		for _, chat := range chats {
			if chat.ChatID != "" {
				chatIDs = append(chatIDs, chat.ChatID)
			}
		}
	}

	logrus.Infof("Sending digest with %d items to %d chats", len(items), len(chatIDs))

	for _, chatID := range chatIDs {
		if err := p.sender.SendCard(ctx, chatID, card); err != nil {
			logrus.Errorf("Failed to send digest to chat %s: %v", chatID, err)
			p.metrics.DigestSendErrors.Inc()
			p.logDelivery(chatID, "failure", err.Error())
			continue
		}
		p.metrics.DigestSends.Inc()
		p.logDelivery(chatID, "success", "")
	}
	return nil
}

// fillDefaultPictures gives items without any resolvable picture the
// configured default image so the card template never renders an empty
// gallery.
func (p *Publisher) fillDefaultPictures(items []models.DigestItem) []models.DigestItem {
	if p.cfg.DefaultImageKey == "" {
		return items
	}
	for i := range items {
		if len(items[i].Pictures) == 0 {
			items[i].Pictures = []models.ResolvedImage{{
				ImgKey:     p.cfg.DefaultImageKey,
				I18nImgKey: map[string]string{defaultLocale: p.cfg.DefaultImageKey},
			}}
		}
	}
	return items
}

func (p *Publisher) logDelivery(chatID, status, errMsg string) {
	if p.recorder == nil {
		return
	}
	if err := p.recorder.LogDelivery("digest", chatID, status, errMsg); err != nil {
		logrus.Errorf("Failed to log digest delivery: %v", err)
	}
}
