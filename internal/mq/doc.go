// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — соединение с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений
//   - consumer.go   — потребление сообщений из очередей
//
// Типы сообщений:
//   - deployment.status — смена статуса деплоя (уведомление)
//
// Exchanges:
//   - deployer.notifications — уведомления, routing key = имя канала
//   - deployer.dlq           — dead letter
package mq
