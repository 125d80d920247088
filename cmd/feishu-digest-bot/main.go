package main

import (
	"github.com/sirupsen/logrus"

	"feishu-digest-bot/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		logrus.Fatalf("application error: %v", err)
	}
}
