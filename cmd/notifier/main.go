package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/TechieJoe/laundromart-Order/internal/config"
	"github.com/TechieJoe/laundromart-Order/internal/consumer"
	"github.com/TechieJoe/laundromart-Order/internal/db"
	"github.com/TechieJoe/laundromart-Order/internal/store"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Unable to load config: %v", err)
	}
	if cfg.RabbitURL == "" {
		log.Fatal("RABBITMQ_URL is required for the notifier")
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool); err != nil {
		log.Fatalf("Unable to apply schema: %v", err)
	}

	dispatcher := consumer.NewNotificationDispatcher(store.NewPostgres(pool))

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatalf("Failed to open a channel: %v", err)
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(cfg.NotificationQueue, true, false, false, false, nil); err != nil {
		log.Fatalf("Failed to declare queue: %v", err)
	}

	msgs, err := ch.Consume(
		cfg.NotificationQueue, // queue
		"",                    // consumer
		false,                 // auto-ack (manual ack only)
		false,                 // exclusive
		false,                 // no-local
		false,                 // no-wait
		nil,                   // args
	)
	if err != nil {
		log.Fatalf("Failed to register a consumer: %v", err)
	}

	go func() {
		for d := range msgs {
			log.Printf("[Notifier] Received message: %s", d.MessageId)

			if err := dispatcher.HandleMessage(ctx, d.MessageId, d.Body); err != nil {
				log.Printf("[Notifier] Failed to process message: %v", err)
				d.Nack(false, true)
				continue
			}
			d.Ack(false)
		}
	}()

	log.Println("[Notifier] Waiting for messages. To exit press CTRL+C")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Println("[Notifier] Shutting down...")
}
