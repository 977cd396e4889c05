// Package health проверяет, что развёрнутый сервис отвечает.
//
// Gate используется в двух местах: после успешного выполнения шага с
// HealthCheck (проверка шага) и после завершения всего графа
// (healthChecks.endpoints деплоя).
package health
