package bot

import (
	"context"

	"enviofinder/data"
	"enviofinder/search"
)

// AlertNotifier adapts the chat sender to the rescan scheduler's
// notification surface.
type AlertNotifier struct {
	sender Sender
}

func NewAlertNotifier(sender Sender) *AlertNotifier {
	return &AlertNotifier{sender: sender}
}

func (n *AlertNotifier) NotifyMatch(ctx context.Context, userID int64, criterion search.Criterion, _ string, products []data.Product) error {
	return n.sender.SendMessage(ctx, userID, FormatNotification(criterion, products))
}

func (n *AlertNotifier) NotifyLowCredit(ctx context.Context, userID int64) error {
	return n.sender.SendMessage(ctx, userID, msgLowCredit)
}
