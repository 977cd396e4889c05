// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go            — Handler с DI (store, coordinator, logger)
//   - routes.go             — регистрация маршрутов
//   - middleware.go         — middleware (logging, recovery, metrics)
//   - response.go           — унифицированные JSON-ответы и обработка ошибок
//   - dto.go                — Data Transfer Objects (request/response)
//   - deployment_handler.go — обработчики для /deployments и /plans
//   - schedule_handler.go   — обработчики для /schedules
//
// Конфигурация деплоя передаётся телом запроса как YAML или JSON
// документ, в том же формате, что и файл для CLI.
package api
