package kafka

import (
	"encoding/json"
	"time"

	"github.com/Shopify/sarama"
)

// Config 事件流水生产端配置。
type Config struct {
	Brokers []string
	Topic   string
	Retries int
}

func buildBaseConfig(conf Config) *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	if conf.Retries <= 0 {
		conf.Retries = 1
	}
	cfg.Producer.Retry.Max = conf.Retries
	// Key 控制分区：同一用户的事件落同一分区，消费端天然有序
	cfg.Producer.Partitioner = sarama.NewHashPartitioner

	cfg.Net.DialTimeout = 10 * time.Second
	cfg.Net.ReadTimeout = 30 * time.Second
	cfg.Net.WriteTimeout = 30 * time.Second
	return cfg
}

// Producer 同步生产者，只写一个 topic。
type Producer struct {
	topic string
	sp    sarama.SyncProducer
}

func NewProducer(conf Config) (*Producer, error) {
	sp, err := sarama.NewSyncProducer(conf.Brokers, buildBaseConfig(conf))
	if err != nil {
		return nil, err
	}
	return &Producer{topic: conf.Topic, sp: sp}, nil
}

// SendJSON 把 v 编成 JSON 发出去，key 用于分区。
func (p *Producer) SendJSON(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, _, err = p.sp.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(raw),
	})
	return err
}

func (p *Producer) Close() error {
	return p.sp.Close()
}
