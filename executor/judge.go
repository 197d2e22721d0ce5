package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/codebench/codebench"
)

// judgeLanguageIDs maps editor languages to the judge service's numeric
// language identifiers. Markup shares the JavaScript id but never reaches
// the network: it is answered locally as a passthrough.
var judgeLanguageIDs = map[codebench.Language]int{
	codebench.LangPython:     71,
	codebench.LangJavaScript: 63,
	codebench.LangHTML:       63,
}

// statusAccepted is the judge's "accepted/completed" status id; every other
// status maps to an error result.
const statusAccepted = 3

// Judge executes code against a judge0-style remote execution API with a
// synchronous wait. Transport, provider, and parse failures all collapse
// into an error-status result: nothing escapes this boundary as a Go error.
type Judge struct {
	cfg    config
	client *http.Client
}

var _ codebench.Executor = (*Judge)(nil)

// NewJudge creates a Judge executor. The endpoint, API key, and host header
// come from options; without an API key every non-markup execution returns
// a configuration-error result.
func NewJudge(opts ...Option) *Judge {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	cfg.endpoint = strings.TrimRight(cfg.endpoint, "/")
	return &Judge{cfg: cfg, client: &http.Client{}}
}

type judgeSubmission struct {
	SourceCode string `json:"source_code"`
	LanguageID int    `json:"language_id"`
	Stdin      string `json:"stdin"`
}

type judgeResponse struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
	Status struct {
		ID          int    `json:"id"`
		Description string `json:"description"`
	} `json:"status"`
	Time string `json:"time"`
}

// Execute submits the source to the judge and maps the provider response to
// the standard result shape.
func (j *Judge) Execute(ctx context.Context, code string, language codebench.Language, stdin string) codebench.ExecutionResult {
	if language == codebench.LangHTML {
		return codebench.ExecutionResult{Stdout: code, Status: codebench.StatusSuccess}
	}

	if j.cfg.apiKey == "" {
		return codebench.ExecutionResult{
			Stderr: "judge API key not configured: set judge.api_key or CODEBENCH_JUDGE_API_KEY",
			Status: codebench.StatusError,
		}
	}

	ctx, cancel := context.WithTimeout(ctx, j.cfg.timeout)
	defer cancel()

	body, err := json.Marshal(judgeSubmission{
		SourceCode: code,
		LanguageID: judgeLanguageIDs[language],
		Stdin:      stdin,
	})
	if err != nil {
		return errorResult(fmt.Sprintf("execution error: %v", err))
	}

	url := j.cfg.endpoint + "/submissions?base64_encoded=false&wait=true"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errorResult(fmt.Sprintf("execution error: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-RapidAPI-Key", j.cfg.apiKey)
	req.Header.Set("X-RapidAPI-Host", j.cfg.apiHost)

	start := time.Now()
	j.cfg.logger.Debug("judge: submitting", "language", language, "language_id", judgeLanguageIDs[language])
	resp, err := j.client.Do(req)
	if err != nil {
		j.cfg.logger.Error("judge: request failed", "error", err, "duration", time.Since(start))
		return errorResult(fmt.Sprintf("execution error: %v", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, int64(j.cfg.maxOutput)+4096))
	if err != nil {
		return errorResult(fmt.Sprintf("execution error: read response: %v", err))
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusForbidden:
		return errorResult("judge API access denied: check your API key and subscription")
	case http.StatusTooManyRequests:
		return errorResult("judge API rate limit exceeded: try again later")
	default:
		j.cfg.logger.Error("judge: unexpected status", "status", resp.StatusCode)
		return errorResult(fmt.Sprintf("execution error: judge returned %d", resp.StatusCode))
	}

	var jr judgeResponse
	if err := json.Unmarshal(respBody, &jr); err != nil {
		return errorResult(fmt.Sprintf("execution error: parse response: %v", err))
	}

	result := codebench.ExecutionResult{
		Stdout: jr.Stdout,
		Stderr: jr.Stderr,
		Status: codebench.StatusError,
	}
	if jr.Status.ID == statusAccepted {
		result.Status = codebench.StatusSuccess
	} else if result.Stderr == "" {
		result.Stderr = jr.Status.Description
	}
	if jr.Time != "" {
		if secs, err := strconv.ParseFloat(jr.Time, 64); err == nil {
			result.ExecutionTime = secs
		}
	}
	j.cfg.logger.Debug("judge: completed", "status", result.Status, "provider_status", jr.Status.ID, "duration", time.Since(start))
	return result
}

func errorResult(stderr string) codebench.ExecutionResult {
	return codebench.ExecutionResult{Stderr: stderr, Status: codebench.StatusError}
}
