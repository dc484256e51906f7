package inventory

import (
	"context"

	"go.uber.org/zap"
)

// LogNotificationSink is a NotificationSink that writes notifications to
// the application log. Useful as the default sink and in development.
// 通知をアプリケーションログに書き出すNotificationSink（既定・開発用）
type LogNotificationSink struct {
	logger *zap.Logger
}

// インターフェース実装の確認
var _ NotificationSink = (*LogNotificationSink)(nil)

// NewLogNotificationSink creates a LogNotificationSink
// LogNotificationSinkを作成
func NewLogNotificationSink(logger *zap.Logger) *LogNotificationSink {
	return &LogNotificationSink{logger: logger}
}

// SendAlert logs an alert notification
// アラート通知をログに記録
func (s *LogNotificationSink) SendAlert(_ context.Context, alert *Alert) error {
	s.logger.Warn("在庫アラート通知",
		zap.String("alert_id", alert.ID),
		zap.String("item_id", alert.ItemID),
		zap.String("type", string(alert.Type)),
		zap.String("priority", string(alert.Priority)),
		zap.String("message", alert.Message))
	return nil
}

// SendReorderNotice logs a reorder notification
// 発注通知をログに記録
func (s *LogNotificationSink) SendReorderNotice(_ context.Context, order *PurchaseOrder) error {
	s.logger.Info("自動発注通知",
		zap.String("order_number", order.OrderNumber),
		zap.String("item_id", order.ItemID),
		zap.String("supplier_id", order.SupplierID),
		zap.String("quantity", order.Quantity.String()))
	return nil
}
