package api

import (
	"net/http"
)

// ListSchedules возвращает расписания регулярных деплоев.
// GET /api/v1/schedules
//
// Расписания задаются в конфигурации сервиса, поэтому API только читает.
func (h *Handler) ListSchedules(w http.ResponseWriter, _ *http.Request) {
	if h.schedules == nil {
		List(w, []ScheduleResponse{}, 0)
		return
	}

	schedules := h.schedules.Schedules()
	result := make([]ScheduleResponse, len(schedules))
	for i := range schedules {
		result[i] = ScheduleFromDomain(&schedules[i])
	}

	List(w, result, len(result))
}
