package notify

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
	"go.uber.org/zap"
)

// CreateKafkaTransport создает transport для Kafka с поддержкой SASL/PLAIN и TLS (для Aiven)
func CreateKafkaTransport(username, password, caCert string, log *zap.Logger) *kafka.Transport {
	transport := &kafka.Transport{
		DialTimeout: 10 * time.Second,
	}

	// Если указаны username и password, используем SASL/PLAIN
	if username != "" && password != "" {
		transport.SASL = plain.Mechanism{
			Username: username,
			Password: password,
		}
		log.Info("🔐 Kafka: SASL/PLAIN аутентификация включена", zap.String("username", username))
	}

	// Если есть SASL, всегда включаем TLS (Aiven требует TLS для SASL). Без CA - системные сертификаты.
	if transport.SASL != nil || caCert != "" {
		tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
		if caCert != "" {
			caCertPool := x509.NewCertPool()
			if ok := caCertPool.AppendCertsFromPEM([]byte(caCert)); ok {
				tlsConfig.RootCAs = caCertPool
				log.Info("🔒 Kafka: TLS с CA сертификатом включен")
			} else {
				log.Warn("⚠️ Kafka: не удалось распарсить CA сертификат, используем системные сертификаты")
			}
		}
		transport.TLS = tlsConfig
	}

	return transport
}

// ParseKafkaBrokers парсит строку с брокерами (может быть через запятую)
func ParseKafkaBrokers(brokers string) []string {
	if brokers == "" {
		return []string{}
	}
	brokerList := strings.Split(strings.ReplaceAll(brokers, " ", ""), ",")
	var result []string
	for _, broker := range brokerList {
		if broker != "" {
			result = append(result, broker)
		}
	}
	return result
}

// KafkaNotifier пишет события в топик Kafka асинхронно
type KafkaNotifier struct {
	writer *kafka.Writer
	log    *zap.Logger
}

// NewKafkaNotifier создает асинхронный producer; ошибки доставки приходят в Completion и логируются
func NewKafkaNotifier(brokers []string, topic string, transport *kafka.Transport, log *zap.Logger) *KafkaNotifier {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
		Transport:    transport,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.Warn("⚠️ Kafka: не удалось доставить события остатков",
					zap.Int("messages", len(messages)),
					zap.Error(err))
			}
		},
	}
	return &KafkaNotifier{writer: writer, log: log}
}

func (n *KafkaNotifier) Notify(ctx context.Context, event StockEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		n.log.Warn("⚠️ Ошибка маршалинга события остатков", zap.Error(err))
		return
	}
	// Ключ - товар: события одного товара попадают в одну партицию и сохраняют порядок
	msg := kafka.Message{
		Key:   []byte(event.ItemID + "@" + event.WarehouseName),
		Value: payload,
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		n.log.Warn("⚠️ Kafka: ошибка отправки события", zap.String("item_id", event.ItemID), zap.Error(err))
	}
}

// Close закрывает producer, дожидаясь отправки буфера
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
