// Package cli реализует инструмент командной строки Deployer.
//
// # Обзор
//
// Команды делятся на две группы:
//   - удалённые (deploy, schedule) работают с Deployer API по HTTP
//     и не импортируют внутренние пакеты;
//   - локальные (plan, run) читают конфигурацию с диска и выполняют
//     её в текущем процессе, без сервера и БД.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Deployer API. Конфигурация деплоя отправляется как есть
// (YAML или JSON), актор передаётся в заголовке X-Deployer-Actor.
//
//	client := cli.NewClient("http://localhost:8080", "alice")
//	d, err := client.CreateDeployment(data)
//
// ## Output
//
// Таблицы (text/tabwriter) по умолчанию, JSON с флагом --json.
// Данные выводятся в stdout, сообщения (Success/Error) в stderr:
//
//	deployer deploy list --json | jq .
//
// ## Commands
//
//   - deploy: start, list, show, steps, audit, cancel
//   - schedule: list
//   - plan -f FILE
//   - run -f FILE
//
// Фабрики удалённых команд принимают clientFn и outputFn, замыкания для
// ленивого создания Client и Output после парсинга PersistentFlags.
package cli
