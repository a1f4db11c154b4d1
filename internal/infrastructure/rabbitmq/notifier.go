package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-table-reservation/internal/application"
	"github.com/sanosuguru/go-table-reservation/internal/domain/booking"
	"github.com/sanosuguru/go-table-reservation/internal/pkg/logger"
)

// DefaultQueue は通知を送るキュー名の既定値
const DefaultQueue = "booking.notifications"

// Channel は通知の発行に使うAMQPチャネルの操作
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Message はキューに流す通知の本文
type Message struct {
	Kind        string          `json:"kind"`
	BookingID   string          `json:"booking_id"`
	EventID     string          `json:"event_id"`
	Requester   string          `json:"requester"`
	Status      string          `json:"status"`
	Allocations []AllocationMsg `json:"allocations"`
	TotalAmount int             `json:"total_amount"`
	ExpiresAt   *time.Time      `json:"expires_at,omitempty"`
	TicketRef   string          `json:"ticket_ref,omitempty"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// AllocationMsg はテーブルごとの確保座席数
type AllocationMsg struct {
	TableID string `json:"table_id"`
	Seats   int    `json:"seats"`
}

// Notifier は予約の状態変化をRabbitMQのキューへ発行する
type Notifier struct {
	mu    sync.Mutex
	conn  *amqp.Connection
	ch    Channel
	queue string
	now   func() time.Time
}

// Dial はブローカーへ接続し、永続キューを宣言したNotifierを返す
func Dial(url, queue string) (*Notifier, error) {
	if queue == "" {
		queue = DefaultQueue
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("RabbitMQ接続に失敗しました: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("RabbitMQチャネルの作成に失敗しました: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("キュー宣言に失敗しました: %w", err)
	}

	n := NewNotifier(ch, queue)
	n.conn = conn
	return n, nil
}

// NewNotifier は宣言済みキューへ発行するNotifierを作成する
func NewNotifier(ch Channel, queue string) *Notifier {
	if queue == "" {
		queue = DefaultQueue
	}
	return &Notifier{ch: ch, queue: queue, now: time.Now}
}

// Notify は通知を永続メッセージとして既定エクスチェンジへ発行する
func (n *Notifier) Notify(ctx context.Context, kind application.NotificationKind, b *booking.Booking) error {
	body, err := json.Marshal(newMessage(kind, b, n.now().UTC()))
	if err != nil {
		return fmt.Errorf("通知のエンコードに失敗: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    n.now().UTC(),
		MessageId:    b.ID + ":" + string(kind),
		Type:         string(kind),
		Body:         body,
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.ch.PublishWithContext(ctx, "", n.queue, false, false, msg); err != nil {
		logger.Warn("通知の発行に失敗しました",
			zap.String("kind", string(kind)),
			zap.String("booking_id", b.ID),
			zap.Error(err),
		)
		return fmt.Errorf("通知の発行に失敗: %w", err)
	}
	return nil
}

// Close はチャネルと接続を閉じる
func (n *Notifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.ch.Close(); err != nil {
		return err
	}
	if n.conn != nil {
		return n.conn.Close()
	}
	return nil
}

func newMessage(kind application.NotificationKind, b *booking.Booking, now time.Time) Message {
	allocs := make([]AllocationMsg, len(b.Allocations))
	for i, a := range b.Allocations {
		allocs[i] = AllocationMsg{TableID: a.TableID, Seats: a.Seats}
	}
	return Message{
		Kind:        string(kind),
		BookingID:   b.ID,
		EventID:     b.EventID,
		Requester:   b.Requester,
		Status:      string(b.Status),
		Allocations: allocs,
		TotalAmount: b.TotalAmount,
		ExpiresAt:   b.ExpiresAt,
		TicketRef:   b.TicketRef,
		OccurredAt:  now,
	}
}

var _ application.Notifier = (*Notifier)(nil)
