package matching

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"strconv"
	"time"
)

// FallbackScore 是 Oracle 调用/解析失败时的兜底原始分（1–10 刻度），
// 换算后为 0.1，低于任何现实阈值，不会产生建议。
const FallbackScore = 1

// Score 是打分 Oracle 的输出：1–10 原始分 + 理由文本。
type Score struct {
	Value     float64
	Rationale string
}

// Oracle 把一段撮合 prompt 变成 {score, rationale}。
// 约定：实现永远不向调用方抛错——超时、传输失败、响应不可解析
// 一律退化为 FallbackScore + 描述性 rationale，保证撮合批次不被单次坏调用中断。
type Oracle interface {
	ScoreMatch(ctx context.Context, prompt string) Score
}

// GeminiOracle 直连 Gemini generateContent REST 接口的 Oracle 实现。
type GeminiOracle struct {
	endpoint    string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	timeout     time.Duration
	client      *http.Client
}

// NewGeminiOracle 创建 Gemini 打分客户端。timeout 是单次调用的硬超时。
func NewGeminiOracle(endpoint, apiKey, model string, temperature float64, maxTokens int, timeout time.Duration) *GeminiOracle {
	return &GeminiOracle{
		endpoint:    endpoint,
		apiKey:      apiKey,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		timeout:     timeout,
		client:      &http.Client{},
	}
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// ScoreMatch 发起一次打分调用。超时与定时器赛跑：超时即返回兜底分，
// 迟到的响应随请求取消一起丢弃。
func (o *GeminiOracle) ScoreMatch(ctx context.Context, prompt string) Score {
	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	text, err := o.generate(callCtx, prompt)
	if err != nil {
		log.Printf("oracle call failed: %v", err)
		return Score{Value: FallbackScore, Rationale: fmt.Sprintf("LLM call failed: %v", err)}
	}
	return parseScoreText(text)
}

// generate 调 generateContent 并抽取首个候选的文本。
// 抽取失败时退回整个响应体，让解析层做最后努力。
func (o *GeminiOracle) generate(ctx context.Context, prompt string) (string, error) {
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", o.endpoint, o.model, o.apiKey)
	payload := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     o.temperature,
			MaxOutputTokens: o.maxTokens,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gemini status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var parsed geminiResponse
	if err := json.Unmarshal(raw, &parsed); err == nil &&
		len(parsed.Candidates) > 0 &&
		len(parsed.Candidates[0].Content.Parts) > 0 {
		return parsed.Candidates[0].Content.Parts[0].Text, nil
	}
	return string(raw), nil
}

// jsonObjectPattern 抓取响应里第一个内嵌 JSON 对象（非贪婪）。
var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*?\}`)

// scorePattern 兜底：从自由文本里抠出 score: N。
var scorePattern = regexp.MustCompile(`(?i)"?score"?\s*[:=]\s*([0-9]+(?:\.[0-9]+)?)`)

type llmMatchResponse struct {
	Score     float64 `json:"score"`
	Rationale string  `json:"rationale"`
}

// parseScoreText 把 LLM 的自然语言响应解析成 Score：
// 1. 找内嵌 JSON 对象并校验 schema（score 1–10，rationale 非空）
// 2. 失败则正则抠 score 数字
// 3. 仍失败则 FallbackScore + 解析失败说明
func parseScoreText(text string) Score {
	jsonStr := text
	if m := jsonObjectPattern.FindString(text); m != "" {
		jsonStr = m
	}

	var parsed llmMatchResponse
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err == nil {
		if parsed.Score >= 1 && parsed.Score <= 10 && parsed.Rationale != "" {
			return Score{Value: parsed.Score, Rationale: parsed.Rationale}
		}
		log.Printf("oracle response schema check failed: %s", truncate(jsonStr, 200))
	}

	if m := scorePattern.FindStringSubmatch(text); len(m) == 2 {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil && v >= 1 && v <= 10 {
			return Score{Value: v, Rationale: "Score recovered from unstructured LLM response."}
		}
	}

	log.Printf("oracle response unparseable: %s", truncate(text, 200))
	return Score{Value: FallbackScore, Rationale: "LLM response parsing failed."}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
