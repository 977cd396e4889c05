// Package coordinator ведёт деплой от конфигурации до финального статуса.
//
// Жизненный цикл деплоя:
//
//	pending ──plan/graph error──────────────────────────→ failed
//	pending → running → executor → health gate ─ok────→ completed
//	                                            └fail─→ failed
//	                                                   └ rollback → rolled_back
//
// Coordinator хранит реестр активных деплоев (один запуск на ID) и
// выдаёт Handle для ожидания и отмены. Реестр принадлежит экземпляру
// Coordinator, глобального состояния нет.
//
// Все записи в Store после отмены выполняются с контекстом, отвязанным
// от отмены: финальный статус деплоя сохраняется всегда.
package coordinator
