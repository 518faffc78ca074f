// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package notifier

import (
	"context"
	"fmt"

	"github.com/apache/pulsar-client-go/pulsar"

	"github.com/xcherryio/xtask/common/log"
	"github.com/xcherryio/xtask/common/log/tag"
	"github.com/xcherryio/xtask/common/uuid"
	"github.com/xcherryio/xtask/config"
)

type pulsarNotifierImpl struct {
	fanout
	client   pulsar.Client
	producer pulsar.Producer
	consumer pulsar.Consumer
	stopCh   chan struct{}
	logger   log.Logger
}

// NewPulsarNotifier broadcasts wakeups on a topic. Every process has its
// own exclusive subscription so that each of them sees every wakeup.
func NewPulsarNotifier(cfg config.PulsarNotifierConfig, logger log.Logger) (Notifier, error) {
	client, err := pulsar.NewClient(pulsar.ClientOptions{
		URL:              cfg.URL,
		OperationTimeout: cfg.OperationTimeout,
	})
	if err != nil {
		return nil, err
	}
	producer, err := client.CreateProducer(pulsar.ProducerOptions{Topic: cfg.Topic})
	if err != nil {
		client.Close()
		return nil, err
	}
	consumer, err := client.Subscribe(pulsar.ConsumerOptions{
		Topic:                       cfg.Topic,
		SubscriptionName:            fmt.Sprintf("xtask-%v", uuid.NewWorkerId()),
		Type:                        pulsar.Exclusive,
		SubscriptionInitialPosition: pulsar.SubscriptionPositionLatest,
	})
	if err != nil {
		producer.Close()
		client.Close()
		return nil, err
	}

	n := &pulsarNotifierImpl{
		client:   client,
		producer: producer,
		consumer: consumer,
		stopCh:   make(chan struct{}),
		logger:   logger.WithTags(tag.Key(cfg.Topic)),
	}
	go n.receive()
	return n, nil
}

func (p *pulsarNotifierImpl) NotifyNewTask(ctx context.Context) error {
	_, err := p.producer.Send(ctx, &pulsar.ProducerMessage{Payload: []byte("new-task")})
	return err
}

func (p *pulsarNotifierImpl) Subscribe() <-chan struct{} {
	return p.subscribe()
}

func (p *pulsarNotifierImpl) receive() {
	msgCh := p.consumer.Chan()
	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				p.logger.Info("message channel is closed")
				return
			}
			p.broadcast()
			if err := p.consumer.Ack(msg); err != nil {
				p.logger.Error("failed to ack the wakeup message",
					tag.Error(err), tag.ID(msg.Message.ID().String()))
			}
		case <-p.stopCh:
			return
		}
	}
}

func (p *pulsarNotifierImpl) Close() error {
	close(p.stopCh)
	p.close()
	// the subscription is per process, nobody will read it again
	err := p.consumer.Unsubscribe()
	p.consumer.Close()
	p.producer.Close()
	p.client.Close()
	return err
}
