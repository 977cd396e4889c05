// Package executor выполняет граф шагов одного деплоя.
//
// Одна координирующая горутина ведёт запись выполнения (record):
// запускает готовые шаги, пока есть свободные слоты (не больше N),
// и ждёт завершения любого из них на канале done. Шаги выполняются
// в отдельных горутинах и не трогают состояние графа, они только
// отправляют outcome. Поэтому статусы шагов меняет ровно одна горутина
// и блокировки не нужны.
//
// Упавший шаг помечает своих (транзитивных) зависимых как skipped.
// Независимые ветки продолжают работу, кроме режимов fail-fast и
// последовательного (N=1), где первая ошибка останавливает всё.
package executor
