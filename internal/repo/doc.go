// Package repo хранит деплои, их шаги и журнал аудита.
//
// PgStore работает с PostgreSQL через pgxpool: конфигурация деплоя и
// дескрипторы команд лежат в JSONB-колонках, схема накатывается
// golang-migrate из встроенных migrations/*.sql.
//
// MemoryStore держит всё в памяти процесса и используется локальным
// режимом CLI и тестами. Наружу отдаются копии, поэтому вызывающий
// может менять полученные структуры без блокировок.
package repo
