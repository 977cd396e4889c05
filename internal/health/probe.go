package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Probe выполняет одну проверку.
// nil означает, что URL ответил ожидаемым статусом в пределах таймаута.
type Probe interface {
	Check(ctx context.Context, url string, expectedStatus int, timeout time.Duration) error
}

// HTTPProbe — проверка через HTTP GET.
type HTTPProbe struct {
	// Client — HTTP-клиент, по умолчанию http.DefaultClient.
	Client *http.Client
}

// Check выполняет GET и сравнивает код ответа с expectedStatus.
func (p *HTTPProbe) Check(ctx context.Context, url string, expectedStatus int, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != expectedStatus {
		return fmt.Errorf("unexpected status %d, expected %d", resp.StatusCode, expectedStatus)
	}
	return nil
}
