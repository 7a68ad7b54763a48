package similarity

import (
	"fmt"
	"math"
)

const DefaultThreshold = 0.80

const (
	exactCodeBonus      = 0.15
	departmentCodeBonus = 0.05
	identifierBonus     = 0.10
)

type Weights struct {
	Title      float64 `yaml:"title" json:"title"`
	Instructor float64 `yaml:"instructor" json:"instructor"`
	Schedule   float64 `yaml:"schedule" json:"schedule"`
	Content    float64 `yaml:"content" json:"content"`
}

func DefaultWeights() Weights {
	return Weights{Title: 0.4, Instructor: 0.2, Schedule: 0.2, Content: 0.2}
}

func (w Weights) Validate() error {
	for name, v := range map[string]float64{"title": w.Title, "instructor": w.Instructor, "schedule": w.Schedule, "content": w.Content} {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("similarity weight %s must be >= 0", name)
		}
	}
	sum := w.Title + w.Instructor + w.Schedule + w.Content
	if math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("similarity weights must sum to 1.0, got %.4f", sum)
	}
	return nil
}
