package cart

import "go.uber.org/zap"

// Kind classifies a cart notification.
type Kind string

const (
	KindItemAdded         Kind = "item_added"
	KindQuantityIncreased Kind = "quantity_increased"
	KindQuantityUpdated   Kind = "quantity_updated"
	KindItemRemoved       Kind = "item_removed"
	KindCartCleared       Kind = "cart_cleared"
)

// Notification is transient, human-readable feedback about a mutation. It is
// advisory: state changes never depend on who listens.
type Notification struct {
	Kind    Kind
	LineID  int
	Message string
}

// Listener receives notifications after the mutation has been applied.
type Listener func(Notification)

// LogListener returns a Listener writing notifications to lg at debug level.
func LogListener(lg *zap.Logger) Listener {
	return func(n Notification) {
		lg.Debug(n.Message,
			zap.String("kind", string(n.Kind)),
			zap.Int("line_id", n.LineID),
		)
	}
}
