// Package engine превращает конфигурацию деплоя в граф шагов.
//
// Включает:
//   - parser.go   — разбор и валидация конфигурации (YAML/JSON)
//   - plan.go     — Plan Builder: конфигурация → упорядоченный список шагов
//   - dag.go      — граф зависимостей, алгоритм Кана, поиск циклов
//   - template.go — рендеринг команд ({{ .Version }}, {{ .Component }})
//
// Engine не выполняет шаги, он только определяет, что и в каком
// порядке может выполняться.
package engine
