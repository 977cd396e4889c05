// Package rollback выполняет компенсирующие команды после неудачного деплоя.
//
// Controller обходит шаги, которые успели выполниться (completed или
// failed), в порядке, обратном порядку их завершения, и запускает для
// каждого его команду Compensate. Шаги без компенсации пропускаются.
//
// Ошибка компенсации не запускает новый откат: она попадает в Report
// и далее в Deployment.Error и аудит.
package rollback
