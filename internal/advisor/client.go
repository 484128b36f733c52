package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"trades-backtest/internal/config"
)

// Client 封装 OpenAI 调用逻辑。
type Client struct {
	cfg    config.AdvisorConfig
	logger *zap.Logger
	sdk    *openai.Client
}

// NewClient 使用给定配置创建点评客户端。
func NewClient(cfg config.AdvisorConfig, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("advisor api_key 不能为空")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sdkConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		sdkConfig.BaseURL = cfg.BaseURL
	}
	sdkConfig.HTTPClient = &http.Client{
		Timeout: cfg.Timeout + 5*time.Second,
	}

	return &Client{
		cfg:    cfg,
		logger: logger,
		sdk:    openai.NewClientWithConfig(sdkConfig),
	}, nil
}

// Review 请求模型对一次回测给出结构化点评。
func (c *Client) Review(ctx context.Context, input ReviewInput) (Assessment, error) {
	if c.cfg.Model == "" {
		return Assessment{}, errors.New("advisor model 不能为空")
	}

	prompt, err := BuildPrompt(input)
	if err != nil {
		return Assessment{}, err
	}

	response, err := c.sdk.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		Temperature: 0,
	})
	if err != nil {
		c.logger.Error("调用OpenAI失败", zap.Error(err))
		return Assessment{}, fmt.Errorf("调用OpenAI失败: %w", err)
	}

	if len(response.Choices) == 0 {
		return Assessment{}, errors.New("OpenAI 返回结果为空")
	}

	rawContent := strings.TrimSpace(response.Choices[0].Message.Content)
	if rawContent == "" {
		return Assessment{}, errors.New("OpenAI 返回内容为空")
	}

	assessment, err := parseAssessment(rawContent)
	if err != nil {
		c.logger.Error("解析模型点评失败",
			zap.Error(err),
			zap.String("raw_content", rawContent),
		)
		return Assessment{}, err
	}

	if err := assessment.Validate(); err != nil {
		return Assessment{}, err
	}

	c.logger.Info("回测点评生成成功",
		zap.String("rating", assessment.Rating),
		zap.Float64("confidence", assessment.Confidence),
	)

	return assessment, nil
}

func parseAssessment(content string) (Assessment, error) {
	jsonPayload, err := extractJSON(content)
	if err != nil {
		return Assessment{}, err
	}

	var assessment Assessment
	if err = json.Unmarshal(jsonPayload, &assessment); err != nil {
		return Assessment{}, fmt.Errorf("解析点评JSON失败: %w", err)
	}

	return assessment, nil
}

func extractJSON(content string) ([]byte, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")

	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("模型输出未找到有效JSON: %s", content)
	}

	return []byte(content[start : end+1]), nil
}
