package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wyfcoding/zksession/internal/session/domain"
	"github.com/wyfcoding/zksession/pkg/contextx"
	"github.com/wyfcoding/zksession/pkg/mq"
)

// OutboxMessage 事件与业务状态同库落盘，由后台任务转发到 Kafka
type OutboxMessage struct {
	ID        string    `gorm:"type:varchar(36);primary_key"`
	EventID   string    `gorm:"type:varchar(36);index"`
	EventType string    `gorm:"type:varchar(100);index"`
	EventKey  string    `gorm:"type:varchar(64);index"`
	Payload   string    `gorm:"type:text"`
	Status    string    `gorm:"type:varchar(20);index;default:'pending'"`
	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time
}

// TableName 指定表名
func (OutboxMessage) TableName() string {
	return "session_outbox_messages"
}

// OutboxEventPublisher 实现 EventPublisher 接口，使用 Outbox 模式。
// ctx 携带事务时，outbox 行写进同一个事务，与状态变更一起提交或回滚
type OutboxEventPublisher struct {
	db *gorm.DB
}

// NewOutboxEventPublisher 创建新的 OutboxEventPublisher 实例
func NewOutboxEventPublisher(db *gorm.DB) *OutboxEventPublisher {
	return &OutboxEventPublisher{db: db}
}

func (p *OutboxEventPublisher) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := contextx.GetTx(ctx).(*gorm.DB); ok {
		return tx
	}
	return p.db
}

// PublishSessionCreated 发布会话创建事件
func (p *OutboxEventPublisher) PublishSessionCreated(ctx context.Context, event domain.SessionCreatedEvent) error {
	return p.publishEvent(ctx, "SessionCreatedEvent", event.User, event)
}

// PublishTradeExecuted 发布交易执行事件
func (p *OutboxEventPublisher) PublishTradeExecuted(ctx context.Context, event domain.TradeExecutedEvent) error {
	return p.publishEvent(ctx, "TradeExecutedEvent", event.User, event)
}

// PublishSessionExpired 发布会话强制过期事件
func (p *OutboxEventPublisher) PublishSessionExpired(ctx context.Context, event domain.SessionExpiredEvent) error {
	return p.publishEvent(ctx, "SessionExpiredEvent", event.User, event)
}

// PublishTraderAuthorized 发布交易员授权事件
func (p *OutboxEventPublisher) PublishTraderAuthorized(ctx context.Context, event domain.TraderAuthorizedEvent) error {
	return p.publishEvent(ctx, "TraderAuthorizedEvent", event.Trader, event)
}

// PublishTraderRevoked 发布交易员撤销事件
func (p *OutboxEventPublisher) PublishTraderRevoked(ctx context.Context, event domain.TraderRevokedEvent) error {
	return p.publishEvent(ctx, "TraderRevokedEvent", event.Trader, event)
}

// publishEvent 通用事件发布方法，key 用于 Kafka 分区保序
func (p *OutboxEventPublisher) publishEvent(ctx context.Context, eventType, key string, event interface{}) error {
	eventData, err := json.Marshal(event)
	if err != nil {
		return err
	}

	message := OutboxMessage{
		ID:        uuid.New().String(),
		EventID:   uuid.New().String(),
		EventType: eventType,
		EventKey:  key,
		Payload:   string(eventData),
		Status:    "pending",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	return p.getDB(ctx).WithContext(ctx).Create(&message).Error
}

// envelope Kafka 消息体，消费方按 event_type 路由
type envelope struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

// ProcessOutboxMessages 将待处理消息按创建顺序转发到 Kafka，
// 单条失败即停止本轮，未发出的消息留到下一轮重试
func (p *OutboxEventPublisher) ProcessOutboxMessages(ctx context.Context, producer *mq.KafkaProducer, topic string, batchSize int) (int, error) {
	var messages []OutboxMessage

	err := p.db.WithContext(ctx).
		Where("status = ?", "pending").
		Order("created_at ASC").
		Limit(batchSize).
		Find(&messages).Error
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, message := range messages {
		body, err := json.Marshal(envelope{
			EventID:   message.EventID,
			EventType: message.EventType,
			Payload:   json.RawMessage(message.Payload),
		})
		if err != nil {
			return sent, err
		}

		if err := producer.SendRaw(ctx, topic, message.EventKey, body); err != nil {
			return sent, err
		}

		if err := p.db.WithContext(ctx).Model(&OutboxMessage{}).
			Where("id = ?", message.ID).
			Updates(map[string]interface{}{"status": "sent", "updated_at": time.Now()}).Error; err != nil {
			return sent, err
		}
		sent++
	}

	return sent, nil
}

// PendingCount 待转发消息数量，用于积压监控
func (p *OutboxEventPublisher) PendingCount(ctx context.Context) (int64, error) {
	var count int64
	err := p.db.WithContext(ctx).Model(&OutboxMessage{}).
		Where("status = ?", "pending").
		Count(&count).Error
	return count, err
}

// CleanupProcessedMessages 清理已处理的消息
func (p *OutboxEventPublisher) CleanupProcessedMessages(ctx context.Context, before time.Time) error {
	return p.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", "sent", before).
		Delete(&OutboxMessage{}).Error
}
