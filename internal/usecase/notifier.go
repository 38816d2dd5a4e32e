package usecase

import (
	"fmt"
	"log"
	"sync"
	"time"

	"portfolio-sync/internal/domain"
	"portfolio-sync/internal/infrastructure/fcm"
	"portfolio-sync/internal/repository"
)

// SyncNotifier pushes an FCM alert when an exchange's sync starts failing.
// Alerts per exchange are rate-limited by a cooldown so a flapping exchange
// does not spam every registered device.
type SyncNotifier struct {
	fcmClient *fcm.Client
	tokenRepo *repository.TokenRepository

	cooldown time.Duration
	mu       sync.Mutex
	notified map[string]time.Time // exchange id -> last alert
}

func NewSyncNotifier(fcmClient *fcm.Client, tokenRepo *repository.TokenRepository) *SyncNotifier {
	return &SyncNotifier{
		fcmClient: fcmClient,
		tokenRepo: tokenRepo,
		cooldown:  15 * time.Minute,
		notified:  make(map[string]time.Time),
	}
}

// NotifyFailures inspects a sync result and alerts on per-exchange errors.
func (n *SyncNotifier) NotifyFailures(result *domain.SyncResult) {
	if result == nil || n.fcmClient == nil || !n.fcmClient.IsEnabled() {
		return
	}

	tokens := n.tokenRepo.GetAllTokens()
	if len(tokens) == 0 {
		return
	}

	now := time.Now()
	for id, bal := range result.Balances {
		if bal.Error == "" {
			continue
		}

		n.mu.Lock()
		last, seen := n.notified[id]
		n.mu.Unlock()
		if seen && now.Sub(last) < n.cooldown {
			continue
		}

		title := fmt.Sprintf("⚠️ %s sync failed", bal.ExchangeName)
		body := bal.Error
		data := map[string]string{
			"exchangeId": id,
			"type":       "sync_failure",
		}

		if err := n.fcmClient.SendMulticast(tokens, title, body, data); err != nil {
			log.Printf("notify: alert for %s failed: %v", bal.ExchangeName, err)
			continue
		}

		n.mu.Lock()
		n.notified[id] = now
		n.mu.Unlock()
	}

	// Drop stale cooldown entries.
	n.mu.Lock()
	for id, stamp := range n.notified {
		if now.Sub(stamp) > n.cooldown*2 {
			delete(n.notified, id)
		}
	}
	n.mu.Unlock()
}
