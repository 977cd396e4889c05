// Package notify доставляет уведомления о деплоях.
//
// Координатор вызывает Sink и не ждёт результата дольше, чем нужно на
// вызов: ошибки уведомлений только логируются и никогда не влияют на
// статус деплоя.
//
// Реализации:
//   - LogSink     — пишет событие в лог
//   - MQSink      — публикует deployment.status в RabbitMQ, по сообщению на канал
//   - WebhookSink — POST JSON на URL канала (используется deployer-relay)
//   - Multi       — рассылает событие нескольким sink'ам
package notify
