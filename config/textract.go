package config

import (
	"os"
	"strconv"
	"sync"
)

var (
	textractOnce   sync.Once
	textractConfig *TextractConfig
)

type TextractConfig struct {
	Region        string
	Endpoint      string
	AccessKey     string
	SecretKey     string
	MinConfidence float64
}

func GetTextractConfig() *TextractConfig {
	textractOnce.Do(func() {
		loadDotEnv()
		minConf := 0.0
		if v, err := strconv.ParseFloat(os.Getenv("TEXTRACT_MIN_CONFIDENCE"), 64); err == nil {
			minConf = v
		}
		textractConfig = &TextractConfig{
			Region:        os.Getenv("AWS_REGION"),
			Endpoint:      os.Getenv("AWS_ENDPOINT"),
			AccessKey:     os.Getenv("AWS_ACCESS_KEY"),
			SecretKey:     os.Getenv("AWS_SECRET_KEY"),
			MinConfidence: minConf,
		}
	})
	return textractConfig
}
