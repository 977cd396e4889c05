package runner

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shaiso/Deployer/internal/domain"
)

// HTTPRunner — runner для команд типа "http".
//
// Отправляет запрос на cmd.URL (метод по умолчанию POST) с cmd.Body.
// Ответ 2xx — успех, остальные коды — неудача шага с телом ответа в Output.
type HTTPRunner struct {
	// Client — HTTP-клиент, по умолчанию http.DefaultClient.
	Client *http.Client
}

// Execute выполняет HTTP-запрос.
func (r *HTTPRunner) Execute(ctx context.Context, cmd domain.Command, opts Options) (*Result, error) {
	if cmd.URL == "" {
		return nil, fmt.Errorf("%w: url is required", ErrInvalidCommand)
	}

	method := cmd.Method
	if method == "" {
		method = http.MethodPost
	}

	var body io.Reader
	if cmd.Body != "" {
		body = strings.NewReader(cmd.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, cmd.URL, body)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrInvalidCommand, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return &Result{Error: ctxErr.Error()}, ctxErr
		}
		return &Result{Error: err.Error()}, nil
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxOutput))
	if err != nil {
		return &Result{Error: fmt.Sprintf("read response: %v", err)}, nil
	}

	result := &Result{Output: string(respBody)}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		result.Error = fmt.Sprintf("HTTP %d", resp.StatusCode)
		return result, nil
	}

	result.Success = true
	return result, nil
}
