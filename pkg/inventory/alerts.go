package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AlertConfig holds alert evaluation thresholds
// アラート評価の閾値設定を保持
type AlertConfig struct {
	ExpiryWarningDays  int // 期限切れ間近と判定する残日数
	ExpiryCriticalDays int // 高優先度に引き上げる残日数
	SweepPageSize      int // スイープ時の品目取得ページサイズ
}

// DefaultAlertConfig returns the default alert configuration
// 既定のアラート設定を返す
func DefaultAlertConfig() AlertConfig {
	return AlertConfig{
		ExpiryWarningDays:  30,
		ExpiryCriticalDays: 7,
		SweepPageSize:      200,
	}
}

// SweepResult summarizes a full alert sweep
// アラートスイープ全体の結果を要約
type SweepResult struct {
	ItemsChecked int       `json:"items_checked"` // 評価した品目数
	AlertsRaised int       `json:"alerts_raised"` // 新規・昇格したアラート数
	ItemsFailed  int       `json:"items_failed"`  // 評価に失敗した品目数
	StartedAt    time.Time `json:"started_at"`    // 開始日時
	FinishedAt   time.Time `json:"finished_at"`   // 終了日時
}

// AlertEngine evaluates alert conditions and reconciles them against
// persisted alerts so a condition notifies once, escalates on priority
// increase, and auto-resolves when it clears.
// アラート条件を評価し、永続化されたアラートと突き合わせる。
// 同一条件の再通知は抑制し、優先度上昇時のみ再通知、解消時は自動解決する
type AlertEngine struct {
	store    Store
	notifier NotificationSink
	clock    Clock
	logger   *zap.Logger
	config   AlertConfig
}

// インターフェース実装の確認
var _ AlertChecker = (*AlertEngine)(nil)

// NewAlertEngine creates an AlertEngine. notifier may be nil.
// AlertEngineを作成（notifierはnil可）
func NewAlertEngine(store Store, notifier NotificationSink, clock Clock, logger *zap.Logger, config AlertConfig) *AlertEngine {
	if clock == nil {
		clock = SystemClock{}
	}
	if config.SweepPageSize <= 0 {
		config.SweepPageSize = 200
	}
	return &AlertEngine{
		store:    store,
		notifier: notifier,
		clock:    clock,
		logger:   logger,
		config:   config,
	}
}

// evaluate returns the alert candidates an item currently warrants.
// Conditions are independent: one item can raise several.
// 品目が現時点で満たすアラート候補を返す（条件は独立で複数発火しうる）
func (e *AlertEngine) evaluate(item *Item, now time.Time) []*Alert {
	var candidates []*Alert

	// 低在庫: 現在庫が最小在庫以下（0なら緊急）
	if item.CurrentStock.LessThanOrEqual(item.MinimumStock) {
		priority := PriorityHigh
		if item.CurrentStock.LessThanOrEqual(decimal.Zero) {
			priority = PriorityCritical
		}
		candidates = append(candidates, &Alert{
			ItemID:         item.ID,
			Type:           AlertTypeLowStock,
			Priority:       priority,
			CurrentValue:   item.CurrentStock,
			ThresholdValue: item.MinimumStock,
			Message: fmt.Sprintf("低在庫: %s (%s) 現在庫=%s, 最小在庫=%s",
				item.Name, item.ItemCode, item.CurrentStock.String(), item.MinimumStock.String()),
			AutoResolvable: true,
		})
	}

	// 有効期限の評価は追跡フラグが立っている場合のみ
	if item.TrackExpiration && item.ExpirationDate != nil {
		if item.ExpirationDate.Before(now) {
			// 期限切れ: 自動解決しない（期限は戻らない）
			candidates = append(candidates, &Alert{
				ItemID:         item.ID,
				Type:           AlertTypeExpired,
				Priority:       PriorityCritical,
				CurrentValue:   item.CurrentStock,
				ThresholdValue: decimal.Zero,
				Message: fmt.Sprintf("期限切れ: %s (%s) 有効期限=%s",
					item.Name, item.ItemCode, item.ExpirationDate.Format("2006-01-02")),
				AutoResolvable: false,
			})
		} else if days := DaysToExpiry(*item.ExpirationDate, now); days <= e.config.ExpiryWarningDays {
			priority := PriorityMedium
			if days <= e.config.ExpiryCriticalDays {
				priority = PriorityHigh
			}
			candidates = append(candidates, &Alert{
				ItemID:         item.ID,
				Type:           AlertTypeExpiringSoon,
				Priority:       priority,
				CurrentValue:   decimal.NewFromInt(int64(days)),
				ThresholdValue: decimal.NewFromInt(int64(e.config.ExpiryWarningDays)),
				Message: fmt.Sprintf("期限切れ間近: %s (%s) 残り%d日",
					item.Name, item.ItemCode, days),
				AutoResolvable: true,
			})
		}
	}

	// 過剰在庫: 最大在庫が設定されていて現在庫が最大×1.2を超える
	if item.MaximumStock.GreaterThan(decimal.Zero) {
		ceiling := item.MaximumStock.Mul(overstockFactor)
		if item.CurrentStock.GreaterThan(ceiling) {
			candidates = append(candidates, &Alert{
				ItemID:         item.ID,
				Type:           AlertTypeOverstocked,
				Priority:       PriorityMedium,
				CurrentValue:   item.CurrentStock,
				ThresholdValue: item.MaximumStock,
				Message: fmt.Sprintf("過剰在庫: %s (%s) 現在庫=%s, 最大在庫=%s",
					item.Name, item.ItemCode, item.CurrentStock.String(), item.MaximumStock.String()),
				AutoResolvable: true,
			})
		}
	}

	return candidates
}

// CheckItem evaluates one item and reconciles its persisted alerts.
// Returns the alerts that were newly raised or escalated.
// 品目1件を評価し永続化済みアラートと突き合わせる。
// 新規発火または昇格したアラートを返す
func (e *AlertEngine) CheckItem(ctx context.Context, item *Item) ([]*Alert, error) {
	now := e.clock.Now()
	candidates := e.evaluate(item, now)

	active, err := e.store.GetActiveAlertsByItem(ctx, item.ID)
	if err != nil {
		return nil, err
	}

	activeByType := make(map[AlertType]*Alert, len(active))
	for _, a := range active {
		activeByType[a.Type] = a
	}

	var raised []*Alert
	for _, candidate := range candidates {
		existing, ok := activeByType[candidate.Type]
		if !ok {
			// 新規発火
			candidate.ID = NewAlertID()
			candidate.IsActive = true
			candidate.CreatedAt = now
			if err := e.store.CreateAlert(ctx, candidate); err != nil {
				e.logger.Error("アラートの保存に失敗しました",
					zap.String("item_id", item.ID),
					zap.String("type", string(candidate.Type)),
					zap.Error(err))
				continue
			}
			alertsRaised.WithLabelValues(string(candidate.Type), string(candidate.Priority)).Inc()
			e.notify(ctx, candidate, now)
			raised = append(raised, candidate)
			continue
		}

		// 既存アラートあり: 優先度が上がった場合のみ更新して再通知
		if candidate.Priority.HigherThan(existing.Priority) {
			existing.Priority = candidate.Priority
			existing.CurrentValue = candidate.CurrentValue
			existing.Message = candidate.Message
			if err := e.store.UpdateAlert(ctx, existing); err != nil {
				e.logger.Error("アラートの昇格に失敗しました",
					zap.String("alert_id", existing.ID),
					zap.Error(err))
				continue
			}
			alertsRaised.WithLabelValues(string(existing.Type), string(existing.Priority)).Inc()
			e.notify(ctx, existing, now)
			raised = append(raised, existing)
			continue
		}

		// 同条件が継続中: 再通知しない（重複抑制）
		existing.CurrentValue = candidate.CurrentValue
		if err := e.store.UpdateAlert(ctx, existing); err != nil {
			e.logger.Warn("アラート現在値の更新に失敗しました",
				zap.String("alert_id", existing.ID),
				zap.Error(err))
		}
	}

	// 条件が解消したアクティブアラートを自動解決
	candidateTypes := make(map[AlertType]bool, len(candidates))
	for _, c := range candidates {
		candidateTypes[c.Type] = true
	}
	for _, a := range active {
		if !candidateTypes[a.Type] && a.AutoResolvable {
			if err := e.store.ResolveAlert(ctx, a.ID, now); err != nil {
				e.logger.Error("アラートの自動解決に失敗しました",
					zap.String("alert_id", a.ID),
					zap.Error(err))
				continue
			}
			alertsResolved.Inc()
			e.logger.Info("アラートを自動解決しました",
				zap.String("alert_id", a.ID),
				zap.String("item_id", item.ID),
				zap.String("type", string(a.Type)))
		}
	}

	return raised, nil
}

// notify 通知を送信（失敗はログのみ、伝播しない）
func (e *AlertEngine) notify(ctx context.Context, alert *Alert, now time.Time) {
	// 低優先度は永続化のみで通知しない
	if e.notifier == nil || alert.Priority == PriorityLow {
		return
	}
	if err := e.notifier.SendAlert(ctx, alert); err != nil {
		e.logger.Error("アラート通知の送信に失敗しました",
			zap.String("alert_id", alert.ID),
			zap.String("type", string(alert.Type)),
			zap.Error(err))
		return
	}
	alert.NotifiedAt = &now
	if err := e.store.UpdateAlert(ctx, alert); err != nil {
		e.logger.Warn("通知日時の保存に失敗しました",
			zap.String("alert_id", alert.ID),
			zap.Error(err))
	}
}

// Sweep evaluates every item. Per-item failures are logged and counted;
// the sweep always finishes.
// 全品目を評価する。品目単位の失敗はログと件数に記録し、スイープは必ず完走する
func (e *AlertEngine) Sweep(ctx context.Context) (*SweepResult, error) {
	started := e.clock.Now()
	result := &SweepResult{StartedAt: started}

	offset := 0
	for {
		items, err := e.store.ListItems(ctx, ItemFilter{}, offset, e.config.SweepPageSize)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			break
		}

		for _, item := range items {
			result.ItemsChecked++
			raised, err := e.CheckItem(ctx, item)
			if err != nil {
				result.ItemsFailed++
				e.logger.Error("スイープ中の品目評価に失敗しました",
					zap.String("item_id", item.ID),
					zap.Error(err))
				continue
			}
			result.AlertsRaised += len(raised)
		}

		if len(items) < e.config.SweepPageSize {
			break
		}
		offset += e.config.SweepPageSize
	}

	result.FinishedAt = e.clock.Now()
	sweepDuration.Observe(result.FinishedAt.Sub(started).Seconds())

	e.logger.Info("アラートスイープが完了しました",
		zap.Int("items_checked", result.ItemsChecked),
		zap.Int("alerts_raised", result.AlertsRaised),
		zap.Int("items_failed", result.ItemsFailed))

	return result, nil
}
