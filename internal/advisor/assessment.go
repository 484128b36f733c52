package advisor

import (
	"errors"
	"fmt"
	"strings"
)

// Assessment 表示大模型对一次回测的结构化点评。
type Assessment struct {
	Rating      string   `json:"rating"`
	Summary     string   `json:"summary"`
	Risks       []string `json:"risks"`
	Suggestions []string `json:"suggestions"`
	Confidence  float64  `json:"confidence"`
}

var validRatings = map[string]struct{}{
	"STRONG":       {},
	"ACCEPTABLE":   {},
	"WEAK":         {},
	"OVERFIT_RISK": {},
}

// Validate 校验点评字段合法性。
func (a Assessment) Validate() error {
	rating := strings.ToUpper(strings.TrimSpace(a.Rating))
	if rating == "" {
		return errors.New("rating 不能为空")
	}
	if _, ok := validRatings[rating]; !ok {
		return fmt.Errorf("rating 字段取值非法: %s", a.Rating)
	}

	if strings.TrimSpace(a.Summary) == "" {
		return errors.New("summary 不能为空")
	}

	if a.Confidence < 0 || a.Confidence > 1 {
		return fmt.Errorf("confidence 必须在 [0,1] 区间，目前为 %f", a.Confidence)
	}

	for i, risk := range a.Risks {
		if strings.TrimSpace(risk) == "" {
			return fmt.Errorf("risks 第 %d 项为空字符串", i)
		}
	}
	for i, suggestion := range a.Suggestions {
		if strings.TrimSpace(suggestion) == "" {
			return fmt.Errorf("suggestions 第 %d 项为空字符串", i)
		}
	}

	return nil
}
