// Package runner выполняет работу шагов деплоя.
//
// Оркестратор не знает, что делает шаг: он передаёт дескриптор
// domain.Command в Runner и получает Result. Registry выбирает
// реализацию по типу команды:
//
//   - shell — команда через sh -c
//   - http  — RPC-вызов, успех при 2xx
//   - delay — пауза (ожидание распространения DNS, прогрева кэшей)
package runner
