package main

import (
	"os"

	"yashubustudio/weatherdesk/internal/app"
)

func main() {
	os.Exit(app.Main(os.Stderr))
}
